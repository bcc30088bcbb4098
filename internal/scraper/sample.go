package scraper

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"time"
)

// sampleProfile describes the listings a sample-backed source produces.
type sampleProfile struct {
	source      Source
	idBase      int
	urlPrefix   string
	companies   []string
	titles      func(r *rand.Rand) string
	locations   []string
	description string
	salaryMin   [2]int
	salaryMax   [2]int
	jobTypes    []string
	levels      []string
	skills      []string
	skillCount  [2]int
	maxAgeDays  int
}

// SampleAdapter serves deterministic listings for sources without a
// reachable endpoint. Output depends only on the source and the UTC day.
type SampleAdapter struct {
	profile sampleProfile
	now     func() time.Time
}

func newSampleAdapter(p sampleProfile, now func() time.Time) *SampleAdapter {
	if now == nil {
		now = time.Now
	}
	return &SampleAdapter{profile: p, now: now}
}

func (s *SampleAdapter) Source() Source {
	return s.profile.source
}

func (s *SampleAdapter) Fetch(ctx context.Context, maxJobs int) SourceResult {
	res := SourceResult{Source: s.profile.source}
	if err := ctx.Err(); err != nil {
		res.Err = Classify(s.profile.source, err)
		return res
	}
	if maxJobs <= 0 {
		return res
	}

	day := s.now().UTC().Truncate(24 * time.Hour)
	r := rand.New(rand.NewPCG(sampleSeed(s.profile.source, day), uint64(s.profile.idBase)))
	p := s.profile

	res.Jobs = make([]NormalizedJob, 0, maxJobs)
	for i := 0; i < maxJobs; i++ {
		title := p.titles(r)
		location := pick(r, p.locations)
		lo := between(r, p.salaryMin)
		hi := between(r, p.salaryMax)
		id := p.idBase + i

		res.Jobs = append(res.Jobs, NormalizedJob{
			SourceID:        fmt.Sprintf("%d", id),
			Title:           title,
			CompanyName:     pick(r, p.companies),
			Location:        location,
			Description:     fmt.Sprintf(p.description, title),
			Salary:          &SalaryRange{Min: lo, Max: hi, Currency: "USD"},
			Tags:            normalizeTags(sampleSkills(r, p.skills, between(r, p.skillCount))),
			PostedAt:        day.AddDate(0, 0, -between(r, [2]int{1, p.maxAgeDays})),
			Source:          p.source,
			URL:             fmt.Sprintf("%s/%d", p.urlPrefix, id),
			JobType:         pick(r, p.jobTypes),
			RemoteType:      pick(r, []string{"remote", "hybrid", "on-site"}),
			ExperienceLevel: pick(r, p.levels),
		})
	}
	return res
}

func sampleSeed(src Source, day time.Time) uint64 {
	h := fnv.New64a()
	h.Write([]byte(src))
	h.Write([]byte(day.Format(time.DateOnly)))
	return h.Sum64()
}

func pick(r *rand.Rand, options []string) string {
	return options[r.IntN(len(options))]
}

// between returns a value in the closed range [bounds[0], bounds[1]].
func between(r *rand.Rand, bounds [2]int) int {
	if bounds[1] <= bounds[0] {
		return bounds[0]
	}
	return bounds[0] + r.IntN(bounds[1]-bounds[0]+1)
}

func sampleSkills(r *rand.Rand, skills []string, k int) []string {
	if k > len(skills) {
		k = len(skills)
	}
	shuffled := append([]string(nil), skills...)
	r.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:k]
}
