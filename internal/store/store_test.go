package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/job-ingest/internal/dedup"
	"github.com/baxromumarov/job-ingest/internal/scraper"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func posting(id, title, company string, posted time.Time) scraper.NormalizedJob {
	return scraper.NormalizedJob{
		SourceID:    id,
		Title:       title,
		CompanyName: company,
		Location:    "Remote",
		Description: title + " at " + company,
		Salary:      &scraper.SalaryRange{Min: 90000, Max: 120000, Currency: "USD"},
		Tags:        []string{"Go", "SQL"},
		PostedAt:    posted,
		Source:      scraper.SourceRemoteOK,
	}
}

// gateways returns every Gateway implementation runnable in this environment,
// each with its clock pinned to testNow.
func gateways(t *testing.T) map[string]Gateway {
	t.Helper()
	out := map[string]Gateway{
		"memory": NewMemoryStore(func() time.Time { return testNow }),
	}

	b, err := OpenBadger("")
	require.NoError(t, err)
	b.now = func() time.Time { return testNow }
	t.Cleanup(func() { b.Close() })
	out["badger"] = b

	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		pg, err := NewStore(dsn)
		require.NoError(t, err)
		require.NoError(t, pg.RunMigrations(""))
		_, err = pg.db.Exec(`TRUNCATE jobs, companies RESTART IDENTITY`)
		require.NoError(t, err)
		pg.now = func() time.Time { return testNow }
		t.Cleanup(func() { pg.Close() })
		out["postgres"] = pg
	}
	return out
}

func TestUpsertJobsCountsCreatedAndSkipped(t *testing.T) {
	for name, g := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := posting("1", "Backend Engineer", "Acme", testNow)
			b := posting("2", "Frontend Engineer", "Acme", testNow)

			res, err := g.UpsertJobs(ctx, []scraper.NormalizedJob{a, b})
			require.NoError(t, err)
			assert.Equal(t, UpsertResult{Created: 2}, res)

			c := posting("3", "SRE", "Globex", testNow)
			res, err = g.UpsertJobs(ctx, []scraper.NormalizedJob{a, c})
			require.NoError(t, err)
			assert.Equal(t, UpsertResult{Created: 1, Skipped: 1}, res)

			n, err := g.CountJobs(ctx)
			require.NoError(t, err)
			assert.EqualValues(t, 3, n)

			fps, err := g.KnownFingerprints(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t,
				[]dedup.Fingerprint{dedup.FingerprintOf(a), dedup.FingerprintOf(b), dedup.FingerprintOf(c)},
				fps,
			)
		})
	}
}

func TestUpsertCompanyIsStable(t *testing.T) {
	for name, g := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first, err := g.UpsertCompany(ctx, "Acme Corp")
			require.NoError(t, err)
			again, err := g.UpsertCompany(ctx, "  acme   corp")
			require.NoError(t, err)
			other, err := g.UpsertCompany(ctx, "Globex")
			require.NoError(t, err)

			assert.Equal(t, first, again)
			assert.NotEqual(t, first, other)
			assert.Positive(t, first)
		})
	}
}

func TestDeleteOlderThanBoundary(t *testing.T) {
	const ageDays = 30
	boundary := testNow.Add(-ageDays * 24 * time.Hour)

	for name, g := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			atBoundary := posting("b", "At Boundary", "Acme", boundary)
			justOlder := posting("o", "Just Older", "Acme", boundary.Add(-time.Second))
			muchOlder := posting("m", "Much Older", "Acme", boundary.AddDate(0, 0, -10))
			newer := posting("n", "Newer", "Acme", boundary.Add(time.Hour))

			_, err := g.UpsertJobs(ctx, []scraper.NormalizedJob{atBoundary, justOlder, muchOlder, newer})
			require.NoError(t, err)

			deleted, err := g.DeleteOlderThan(ctx, ageDays)
			require.NoError(t, err)
			assert.EqualValues(t, 2, deleted, "only postings strictly before the cutoff go")

			fps, err := g.KnownFingerprints(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t,
				[]dedup.Fingerprint{dedup.FingerprintOf(atBoundary), dedup.FingerprintOf(newer)},
				fps,
				"a posting exactly at the boundary is retained",
			)

			deleted, err = g.DeleteOlderThan(ctx, ageDays)
			require.NoError(t, err)
			assert.Zero(t, deleted)
		})
	}
}

func TestDeleteOlderThanRejectsNonPositiveAge(t *testing.T) {
	for name, g := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			_, err := g.DeleteOlderThan(context.Background(), 0)
			assert.ErrorIs(t, err, ErrInvalidAge)
			assert.True(t, IsPersistenceError(err))
		})
	}
}

func TestMemoryStoreFailure(t *testing.T) {
	m := NewMemoryStore(nil)
	m.SetFailure(errors.New("disk full"))

	_, err := m.UpsertJobs(context.Background(), []scraper.NormalizedJob{posting("1", "A", "B", testNow)})
	require.Error(t, err)
	var pe *PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "upsert jobs", pe.Op)

	m.SetFailure(nil)
	res, err := m.UpsertJobs(context.Background(), []scraper.NormalizedJob{posting("1", "A", "B", testNow)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
}

func TestBadgerKeepsJobPayload(t *testing.T) {
	b, err := OpenBadger("")
	require.NoError(t, err)
	defer b.Close()

	j := posting("7", "Data Engineer", "Initech", testNow)
	_, err = b.UpsertJobs(context.Background(), []scraper.NormalizedJob{j})
	require.NoError(t, err)

	var rec jobRecord
	require.NoError(t, b.store.Get(string(dedup.FingerprintOf(j)), &rec))
	assert.Equal(t, j.Title, rec.Job.Title)
	assert.Equal(t, j.Tags, rec.Job.Tags)
	assert.Equal(t, *j.Salary, *rec.Job.Salary)
	assert.True(t, j.PostedAt.Equal(rec.Job.PostedAt))
	assert.Positive(t, rec.CompanyID)
}

func TestCutoffAndWebsite(t *testing.T) {
	assert.Equal(t, testNow.AddDate(0, 0, -60), Cutoff(testNow, 60))
	assert.Equal(t, "https://www.acmecorp.com", CompanyWebsite("Acme Corp."))
	assert.Empty(t, CompanyWebsite(""))
}

func TestOpenSelectsDriver(t *testing.T) {
	gw, err := Open(Options{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, gw)
	require.NoError(t, gw.Close())

	gw, err = Open(Options{Driver: "badger"})
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, gw)
	require.NoError(t, gw.Close())

	_, err = Open(Options{Driver: "sqlite"})
	assert.ErrorContains(t, err, "unknown storage driver")
}
