package scraper

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestCleanDescription(t *testing.T) {
	assert.Equal(t, noDescription, CleanDescription(""))
	assert.Equal(t, noDescription, CleanDescription("<div> </div>"))
	assert.Equal(t, "Go & Postgres", CleanDescription("Go &amp; Postgres"))
	assert.Equal(t, "Remote role. Apply now",
		CleanDescription("<h2>Remote   role.</h2><script>track()</script><p>Apply\nnow</p>"))

	long := CleanDescription(strings.Repeat("é", 2500))
	assert.Equal(t, maxDescriptionRunes+3, utf8.RuneCountInString(long))
	assert.True(t, strings.HasSuffix(long, "..."))
}

func TestParseSalary(t *testing.T) {
	tests := []struct {
		in   any
		want int
		ok   bool
	}{
		{nil, 0, false},
		{"", 0, false},
		{"competitive", 0, false},
		{float64(0), 0, false},
		{float64(95000), 95000, true},
		{"120", 120000, true},
		{"$85,000 - $110,000", 85000, true},
		{"80k", 80000, true},
		{150, 150000, true},
	}
	for _, tt := range tests {
		got, ok := ParseSalary(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestNewSalaryRange(t *testing.T) {
	assert.Nil(t, NewSalaryRange(nil, 0.0, ""))
	assert.Equal(t, &SalaryRange{Min: 90000, Max: 130000, Currency: "USD"}, NewSalaryRange("130", "90", ""))
	assert.Equal(t, &SalaryRange{Max: 70000, Currency: "EUR"}, NewSalaryRange(nil, "70k", "EUR"))
}

func TestInferExperienceLevel(t *testing.T) {
	for title, want := range map[string]string{
		"Senior Backend Engineer":     "senior",
		"Sr. Data Engineer":           "senior",
		"Staff SRE":                   "senior",
		"Junior Developer":            "entry",
		"Software Engineering Intern": "entry",
		"Backend Engineer":            "mid",
		"Product Designer (Assoc)":    "mid",
	} {
		assert.Equal(t, want, InferExperienceLevel(title), title)
	}
}

func TestInferRemoteType(t *testing.T) {
	assert.Equal(t, "remote", InferRemoteType("Remote - Europe"))
	assert.Equal(t, "remote", InferRemoteType("Anywhere"))
	assert.Equal(t, "hybrid", InferRemoteType("London (Hybrid)"))
	assert.Equal(t, "on-site", InferRemoteType("Berlin, Germany"))
}

func TestExtractSkills(t *testing.T) {
	assert.Nil(t, ExtractSkills(nil))
	assert.Equal(t,
		[]string{"AWS", "C++", "Golang", "Machine Learning"},
		ExtractSkills([]string{"golang", "aws", "Golang", "c++", "machine learning", "#1", "ux?"}),
	)

	many := make([]string, 0, 15)
	for i := 0; i < 15; i++ {
		many = append(many, "skill"+string(rune('a'+i)))
	}
	assert.Len(t, ExtractSkills(many), maxSkills)
}
