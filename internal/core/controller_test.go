package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/job-ingest/internal/config"
	"github.com/baxromumarov/job-ingest/internal/scraper"
)

func testConfig() config.Config {
	cfg := *config.Default()
	cfg.Storage.Driver = "memory"
	cfg.Scraping.InitialDelaySeconds = 3600
	return cfg
}

func newTestController(t *testing.T, h *harness) (*Controller, *[]config.Config) {
	return newTestControllerWith(t, h, testConfig())
}

func newTestControllerWith(t *testing.T, h *harness, cfg config.Config) (*Controller, *[]config.Config) {
	t.Helper()
	var built []config.Config
	build := func(cfg *config.Config) (*Orchestrator, error) {
		built = append(built, *cfg)
		return h.orch, nil
	}
	c, err := newController(cfg, h.store, h.tracker, &alertRecorder{}, build, quietLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Stop(context.Background()) })
	return c, &built
}

func TestControllerManualRun(t *testing.T) {
	yc := &fakeAdapter{src: scraper.SourceYCombinator, jobs: []scraper.NormalizedJob{job(scraper.SourceYCombinator, "1", "Founding Engineer", "Stripe")}}
	other := &fakeAdapter{src: scraper.SourceRemoteOK}
	h := newHarness(OrchestratorConfig{}, yc, other)
	c, _ := newTestController(t, h)

	sum, err := c.TriggerManualRun(context.Background(), 50, []string{"yc"})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.JobsSaved)
	assert.Equal(t, []int{50}, yc.seenBudgets())
	assert.Zero(t, other.calls.Load())

	_, err = c.TriggerManualRun(context.Background(), 1001, nil)
	assert.ErrorIs(t, err, ErrInvalidMaxJobs)
	_, err = c.TriggerManualRun(context.Background(), 10, []string{"monster"})
	assert.Error(t, err)
	assert.EqualValues(t, 1, c.Metrics().TotalRuns)
}

func TestControllerConfigUpdateNeedsRestart(t *testing.T) {
	h := newHarness(OrchestratorConfig{})
	c, built := newTestController(t, h)
	require.NoError(t, c.Start())

	interval := 15
	view, err := c.UpdateConfig(config.Update{IntervalMinutes: &interval})
	require.NoError(t, err)
	assert.Equal(t, 15, view.Scraping.IntervalMinutes)
	assert.True(t, view.RestartRequired)
	require.NotNil(t, view.Active)
	assert.Equal(t, 60, view.Active.Scraping.IntervalMinutes)
	st := c.Status()
	assert.True(t, st.RestartRequired)
	assert.Equal(t, 60, st.IntervalMinutes, "status reports the running interval until restart")

	tooShort := 1
	view, err = c.UpdateConfig(config.Update{IntervalMinutes: &tooShort})
	assert.Error(t, err)
	assert.Equal(t, 15, view.Scraping.IntervalMinutes)

	require.NoError(t, c.RestartScheduler(context.Background()))
	assert.Nil(t, c.Config().Active)
	st = c.Status()
	assert.False(t, st.RestartRequired)
	assert.True(t, st.Running)
	assert.Equal(t, 15, st.IntervalMinutes)
	require.Len(t, *built, 2)
	assert.Equal(t, 15, (*built)[1].Scraping.IntervalMinutes)
}

func TestControllerCleanupFloor(t *testing.T) {
	h := newHarness(OrchestratorConfig{})
	c, _ := newTestController(t, h)

	_, err := c.Cleanup(context.Background(), 29)
	assert.ErrorIs(t, err, ErrCleanupTooRecent)

	deleted, err := c.Cleanup(context.Background(), 30)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestNewControllerWiresRateLimiter(t *testing.T) {
	h := newHarness(OrchestratorConfig{})
	cfg := testConfig()
	cfg.RateLimit.BurstSize = 7

	c, err := NewController(cfg, h.store, h.dedup, h.tracker, &alertRecorder{}, quietLogger)
	require.NoError(t, err)

	m := c.Metrics()
	require.NotNil(t, m.RateLimit)
	assert.Equal(t, 7, m.RateLimit.Capacity)
	assert.Equal(t, cfg.Scheduler.FailureAlertThreshold, m.FailureThreshold)
	assert.Equal(t,
		[]string{"remoteok", "ycombinator", "wellfound", "otta"},
		c.Status().EnabledSources,
	)
}

func TestStagedDisableKeepsRunningSettings(t *testing.T) {
	h := newHarness(OrchestratorConfig{})
	c, _ := newTestController(t, h)
	require.NoError(t, c.Start())

	off := false
	maxJobs := 25
	view, err := c.UpdateConfig(config.Update{Enabled: &off, MaxJobsPerRun: &maxJobs})
	require.NoError(t, err)
	assert.False(t, view.Scraping.Enabled)
	require.NotNil(t, view.Active)
	assert.True(t, view.Active.Scraping.Enabled)

	st := c.Status()
	assert.True(t, st.ScrapeEnabled)
	assert.Equal(t, 200, st.MaxJobsPerRun)
	assert.True(t, st.RestartRequired)

	require.NoError(t, c.RestartScheduler(context.Background()))
	st = c.Status()
	assert.False(t, st.ScrapeEnabled)
	assert.Equal(t, 25, st.MaxJobsPerRun)
	assert.False(t, st.RestartRequired)
}

func TestStatusAnswersWhileRestartWaitsOnRun(t *testing.T) {
	slow := &fakeAdapter{src: scraper.SourceRemoteOK, block: make(chan struct{}), started: make(chan struct{})}
	h := newHarness(OrchestratorConfig{}, slow)
	cfg := testConfig()
	cfg.Scraping.InitialDelaySeconds = 0
	cfg.Scheduler.StopTimeoutSeconds = 5
	c, _ := newTestControllerWith(t, h, cfg)
	require.NoError(t, c.Start())
	<-slow.started

	restarted := make(chan error, 1)
	go func() { restarted <- c.RestartScheduler(context.Background()) }()

	require.Eventually(t, func() bool {
		return c.Status().State == StateStopping
	}, time.Second, 5*time.Millisecond)

	interval := 15
	view, err := c.UpdateConfig(config.Update{IntervalMinutes: &interval})
	require.NoError(t, err)
	assert.True(t, view.RestartRequired)
	assert.Zero(t, c.Metrics().TotalRuns)

	close(slow.block)
	require.NoError(t, <-restarted)

	st := c.Status()
	assert.Equal(t, StateRunning, st.State)
	assert.True(t, st.RestartRequired, "change staged during the restart stays pending")
	assert.Equal(t, 60, st.IntervalMinutes)
}
