package scraper

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	maxDescriptionRunes = 2000
	maxSkills           = 10
	noDescription       = "Job description not available."
)

var (
	digitsRe = regexp.MustCompile(`\d+`)

	techSkills = map[string]struct{}{
		"python": {}, "javascript": {}, "typescript": {}, "react": {}, "node": {}, "vue": {},
		"angular": {}, "java": {}, "go": {}, "golang": {}, "rust": {}, "kotlin": {}, "swift": {},
		"php": {}, "ruby": {}, "c++": {}, "c#": {}, "sql": {}, "mongodb": {}, "postgresql": {},
		"mysql": {}, "redis": {}, "elasticsearch": {}, "aws": {}, "gcp": {}, "azure": {},
		"docker": {}, "kubernetes": {}, "terraform": {}, "git": {}, "linux": {}, "jenkins": {},
		"graphql": {}, "rest": {}, "api": {},
	}
	acronyms = map[string]string{
		"aws": "AWS", "gcp": "GCP", "sql": "SQL", "api": "API", "php": "PHP",
		"css": "CSS", "html": "HTML", "ui": "UI", "ux": "UX", "qa": "QA", "ml": "ML", "ai": "AI",
	}

	seniorWords = []string{"senior", "sr", "lead", "principal", "staff", "architect"}
	entryWords  = []string{"junior", "jr", "entry", "graduate", "associate", "intern", "trainee"}
)

// CleanDescription strips markup from a listing description, collapses
// whitespace and caps the result at 2000 runes.
func CleanDescription(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return noDescription
	}
	text := raw
	if strings.ContainsAny(raw, "<&") {
		if doc, err := html.Parse(strings.NewReader(raw)); err == nil {
			text = ExtractText(doc)
		}
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return noDescription
	}
	if utf8.RuneCountInString(text) > maxDescriptionRunes {
		runes := []rune(text)
		text = string(runes[:maxDescriptionRunes]) + "..."
	}
	return text
}

// ExtractText returns the concatenated text content of n, skipping script
// and style elements.
func ExtractText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "br", "li", "div", "h1", "h2", "h3", "h4", "tr":
				sb.WriteByte(' ')
			}
		}
	}
	walk(n)
	return sb.String()
}

// ParseSalary extracts an annual amount from a string or numeric value.
// Values below 1000 are read as thousands.
func ParseSalary(v any) (int, bool) {
	var n int
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		n = int(t)
	case int:
		n = t
	case int64:
		n = int(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		n = int(f)
	case string:
		m := digitsRe.FindString(strings.ReplaceAll(t, ",", ""))
		if m == "" {
			return 0, false
		}
		parsed, err := strconv.Atoi(m)
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	if n <= 0 {
		return 0, false
	}
	if n < 1000 {
		n *= 1000
	}
	return n, true
}

// NewSalaryRange returns nil when neither bound parses.
func NewSalaryRange(min, max any, currency string) *SalaryRange {
	lo, okLo := ParseSalary(min)
	hi, okHi := ParseSalary(max)
	if !okLo && !okHi {
		return nil
	}
	if okLo && okHi && lo > hi {
		lo, hi = hi, lo
	}
	if currency == "" {
		currency = "USD"
	}
	return &SalaryRange{Min: lo, Max: hi, Currency: currency}
}

// InferExperienceLevel maps title keywords to entry, mid or senior.
func InferExperienceLevel(title string) string {
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	has := func(keys []string) bool {
		for _, w := range words {
			for _, k := range keys {
				if w == k {
					return true
				}
			}
		}
		return false
	}
	switch {
	case has(seniorWords):
		return "senior"
	case has(entryWords):
		return "entry"
	}
	return "mid"
}

// InferRemoteType reads the remote arrangement from a location string.
func InferRemoteType(location string) string {
	l := strings.ToLower(location)
	switch {
	case strings.Contains(l, "hybrid"):
		return "hybrid"
	case strings.Contains(l, "remote"), strings.Contains(l, "anywhere"):
		return "remote"
	}
	return "on-site"
}

// ExtractSkills keeps tags that name a known technology or look like a
// plain alphanumeric keyword, title-cased, unique and at most 10.
func ExtractSkills(tags []string) []string {
	caser := cases.Title(language.English)
	var skills []string
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		lower := strings.ToLower(tag)
		if lower == "" {
			continue
		}
		if !isKnownSkill(lower) && !isKeyword(tag) {
			continue
		}
		skills = append(skills, displaySkill(caser, lower))
	}
	skills = normalizeTags(skills)
	if len(skills) > maxSkills {
		skills = skills[:maxSkills]
	}
	return skills
}

func isKnownSkill(lower string) bool {
	if _, ok := techSkills[lower]; ok {
		return true
	}
	for skill := range techSkills {
		if len(skill) > 2 && strings.Contains(lower, skill) {
			return true
		}
	}
	return false
}

func isKeyword(tag string) bool {
	if utf8.RuneCountInString(tag) <= 2 {
		return false
	}
	for _, r := range tag {
		if r == ' ' || r == '-' {
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func displaySkill(caser cases.Caser, lower string) string {
	if a, ok := acronyms[lower]; ok {
		return a
	}
	return caser.String(lower)
}
