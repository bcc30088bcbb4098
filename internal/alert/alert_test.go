package alert

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/job-ingest/internal/config"
)

var details = Details{
	RunID:               "run-1",
	At:                  time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC),
	Message:             "all sources failed",
	ConsecutiveFailures: 3,
	SourceErrors:        map[string]string{"yc": "503", "remoteok": "timeout"},
}

func TestBodyListsErrorsSorted(t *testing.T) {
	body := Body(RunFailed, details)
	assert.Contains(t, body, "Job scraping is failing")
	assert.Contains(t, body, "Consecutive failures: 3")
	assert.Contains(t, body, "Time: 2025-03-04T05:06:07Z")
	assert.Less(t,
		strings.Index(body, "remoteok: timeout"),
		strings.Index(body, "yc: 503"),
	)
}

func TestSlackNotifierPostsText(t *testing.T) {
	var got slackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, srv.Client())
	require.NoError(t, n.Notify(context.Background(), HealthDegraded, details))
	assert.Contains(t, got.Text, "health degraded")
	assert.Contains(t, got.Text, "run-1")
}

func TestSlackNotifierReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewSlackNotifier(srv.URL, nil).Notify(context.Background(), RunFailed, details)
	assert.ErrorContains(t, err, "403")
}

func TestEmailNotifier(t *testing.T) {
	n := NewEmailNotifier(EmailConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "bot@example.com",
		Password: "secret",
		To:       []string{"ops@example.com", "dev@example.com"},
	})

	var addr, from string
	var to []string
	var msg []byte
	n.send = func(a string, _ smtp.Auth, f string, rcpt []string, m []byte) error {
		addr, from, to, msg = a, f, rcpt, m
		return nil
	}

	require.NoError(t, n.Notify(context.Background(), CleanupFailed, details))
	assert.Equal(t, "smtp.example.com:587", addr)
	assert.Equal(t, "bot@example.com", from)
	assert.Equal(t, []string{"ops@example.com", "dev@example.com"}, to)
	assert.Contains(t, string(msg), "Subject: Job cleanup failed\r\n")
	assert.Contains(t, string(msg), "To: ops@example.com, dev@example.com\r\n")
}

func TestEmailNotifierWithoutRecipients(t *testing.T) {
	err := NewEmailNotifier(EmailConfig{Host: "localhost", Port: 25}).Notify(context.Background(), RunFailed, details)
	assert.ErrorIs(t, err, errNoRecipients)
}

type recorder struct {
	events []Event
	err    error
}

func (r *recorder) Notify(_ context.Context, e Event, _ Details) error {
	r.events = append(r.events, e)
	return r.err
}

func TestMultiDeliversToAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a, b := &recorder{err: boom}, &recorder{}
	err := Multi{a, nil, b, LogNotifier{}}.Notify(context.Background(), RunSucceeded, details)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []Event{RunSucceeded}, a.events)
	assert.Equal(t, []Event{RunSucceeded}, b.events)
}

func TestFromConfig(t *testing.T) {
	cfg := config.AlertingConfig{
		Enabled:         true,
		SlackWebhookURL: "https://hooks.slack.test/T000",
		Email:           config.EmailConfig{SMTPHost: "smtp.test", SMTPPort: 587, To: []string{"ops@example.com"}},
	}
	m, ok := FromConfig(cfg, nil).(Multi)
	require.True(t, ok)
	require.Len(t, m, 3)
	assert.IsType(t, LogNotifier{}, m[0])
	assert.IsType(t, &SlackNotifier{}, m[1])
	assert.IsType(t, &EmailNotifier{}, m[2])

	cfg.Enabled = false
	m = FromConfig(cfg, nil).(Multi)
	assert.Len(t, m, 1)
}
