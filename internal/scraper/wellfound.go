package scraper

import (
	"math/rand/v2"
	"time"
)

// Wellfound has no public API; listings come from the sample generator.
var wellfoundProfile = sampleProfile{
	source:    SourceWellfound,
	idBase:    1000,
	urlPrefix: "https://wellfound.com/jobs",
	companies: []string{
		"TechStartup Inc", "InnovateCo", "ScaleUp Labs", "NextGen Solutions",
		"AI Dynamics", "CloudFirst", "DataFlow Systems", "DevTools Pro",
	},
	titles: func(r *rand.Rand) string {
		return pick(r, []string{
			"Full Stack Engineer", "Backend Engineer", "Frontend Developer",
			"DevOps Engineer", "Data Engineer", "Product Manager", "ML Engineer",
		})
	},
	locations: []string{
		"San Francisco, CA", "New York, NY", "Austin, TX", "Remote",
		"Seattle, WA", "Boston, MA", "Los Angeles, CA", "Denver, CO",
	},
	description: "Join our fast-growing startup as a %s. We are building the future of technology with cutting-edge solutions.",
	salaryMin:   [2]int{70000, 120000},
	salaryMax:   [2]int{130000, 250000},
	jobTypes:    []string{"full-time", "contract"},
	levels:      []string{"entry", "mid", "senior"},
	skills:      []string{"Python", "React", "Node.js", "AWS", "Docker", "Kubernetes", "TypeScript"},
	skillCount:  [2]int{3, 5},
	maxAgeDays:  14,
}

func NewWellfoundAdapter(now func() time.Time) *SampleAdapter {
	return newSampleAdapter(wellfoundProfile, now)
}
