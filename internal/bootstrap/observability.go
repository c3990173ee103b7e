package bootstrap

import (
	"log/slog"

	"github.com/nguyenhoangdanh/dnsecure-sub000/config"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/observability/notify"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/observability/notify/slack"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/observability/statsd"
)

// Observability groups shared metrics and notice sinks.
type Observability struct {
	// MetricsClient is nil when metrics are disabled or the sink could not be dialed.
	MetricsClient *statsd.Client
	Notices       notify.Sink
}

// Metrics returns the metrics sink, or nil when disabled. The typed nil is never returned so
// callers can compare against nil.
//
//nolint:ireturn // callers take the statsd.Sink port.
func (o Observability) Metrics() statsd.Sink {
	if o.MetricsClient == nil {
		return nil
	}
	return o.MetricsClient
}

// Close flushes and closes the metrics client.
func (o Observability) Close() error {
	if o.MetricsClient == nil {
		return nil
	}
	return o.MetricsClient.Close()
}

// BuildObservability configures metrics and status notice adapters. Failures to build an
// optional sink are logged and the sink is skipped.
func BuildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) Observability {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Tags:    cfg.Metrics.Tags,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return Observability{
		MetricsClient: metricsSink,
		Notices:       buildNotices(obsLogger, cfg.Notifications),
	}
}

// buildNotices always includes a log sink so outages show up in the process log; Slack is
// added when configured.
//
//nolint:ireturn // the fan-out is consumed through notify.Sink.
func buildNotices(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) notify.Sink {
	sinks := notify.Fanout{notify.LogSink{Logger: logger.With("component", "status_notices")}}
	if !cfg.Enabled || !cfg.Slack.Enabled {
		return sinks
	}

	client, err := slack.NewClient(slack.Config{
		WebhookURL: cfg.Slack.WebhookURL,
		Channel:    cfg.Slack.Channel,
		Username:   cfg.Slack.Username,
		Timeout:    cfg.Timeout,
		RetryLimit: cfg.RetryLimit,
		StatusURL:  cfg.Slack.StatusURL,
	})
	if err != nil {
		logger.Error("failed to initialise slack notifier", "error", err)
		return sinks
	}
	return append(sinks, client)
}
