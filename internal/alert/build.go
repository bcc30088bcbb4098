package alert

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/baxromumarov/job-ingest/internal/config"
)

// FromConfig assembles the notifiers enabled in cfg. Events are always logged;
// Slack and email are added when configured and alerting is enabled.
func FromConfig(cfg config.AlertingConfig, logger *slog.Logger) Notifier {
	out := Multi{LogNotifier{Logger: logger}}
	if !cfg.Enabled {
		return out
	}
	if cfg.SlackWebhookURL != "" {
		out = append(out, NewSlackNotifier(cfg.SlackWebhookURL, &http.Client{Timeout: 10 * time.Second}))
	}
	if len(cfg.Email.To) > 0 && cfg.Email.SMTPHost != "" {
		out = append(out, NewEmailNotifier(EmailConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
		}))
	}
	return out
}
