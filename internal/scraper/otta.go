package scraper

import (
	"math/rand/v2"
	"time"
)

// Otta's GraphQL API needs authentication; listings come from the sample generator.
var ottaProfile = sampleProfile{
	source:    SourceOtta,
	idBase:    2000,
	urlPrefix: "https://otta.com/jobs",
	companies: []string{
		"Revolut", "Monzo", "Deliveroo", "Spotify", "Klarna",
		"Wise", "Cazoo", "GoCardless", "Darktrace", "BenevolentAI",
	},
	titles: func(r *rand.Rand) string {
		return "Senior " + pick(r, []string{"Software", "Backend", "Frontend", "Full Stack"}) + " Engineer"
	},
	locations: []string{
		"London, UK", "Berlin, Germany", "Amsterdam, Netherlands",
		"Barcelona, Spain", "Stockholm, Sweden", "Remote - Europe",
	},
	description: "Join our mission as a %s. We offer competitive salary, equity and strong benefits.",
	salaryMin:   [2]int{60000, 100000},
	salaryMax:   [2]int{110000, 180000},
	jobTypes:    []string{"full-time"},
	levels:      []string{"mid", "senior"},
	skills:      []string{"TypeScript", "React", "Python", "Go", "Kubernetes", "PostgreSQL", "GraphQL"},
	skillCount:  [2]int{4, 6},
	maxAgeDays:  10,
}

func NewOttaAdapter(now func() time.Time) *SampleAdapter {
	return newSampleAdapter(ottaProfile, now)
}
