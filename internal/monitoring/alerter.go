package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-enricher/internal/config"
	"github.com/sells-group/contact-enricher/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate   AlertType = "activity_failure_rate"
	AlertLastFailed    AlertType = "last_activity_failed"
	AlertStaleActivity AlertType = "stale_activity"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// minFinished is how many finished activities a failure rate needs before
// it is trusted.
const minFinished = 3

// Alert is one breached threshold for a run.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  Severity       `json:"severity"`
	Run       string         `json:"run,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// rule inspects a snapshot and returns an alert when its condition holds.
type rule func(cfg config.MonitoringConfig, snap *Snapshot) (Alert, bool)

var rules = []rule{failureRateRule, lastFailedRule, staleRule}

// Alerter turns snapshots into alerts and posts them to a webhook.
type Alerter struct {
	cfg     config.MonitoringConfig
	client  *http.Client
	backoff resilience.Backoff
	now     func() time.Time
}

// NewAlerter creates an Alerter for cfg.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		backoff: resilience.Backoff{
			Attempts: 3,
			Initial:  time.Second,
			OnRetry:  resilience.LogRetry("monitoring.webhook"),
		},
		now: time.Now,
	}
}

// Evaluate applies every rule to snap in order.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	run := fmt.Sprintf("%s %s", snap.Name, snap.Version)
	ts := a.now().UTC()

	var alerts []Alert
	for _, r := range rules {
		if alert, ok := r(a.cfg, snap); ok {
			alert.Run = run
			alert.Message = run + ": " + alert.Message
			alert.Timestamp = ts
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

func failureRateRule(cfg config.MonitoringConfig, snap *Snapshot) (Alert, bool) {
	finished := snap.Succeeded + snap.Failed
	if finished < minFinished || snap.FailRate <= cfg.FailureRateThreshold {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertFailureRate,
		Severity: SeverityHigh,
		Message: fmt.Sprintf("failure rate %.1f%% is over %.1f%% (%d of %d finished activities, %dh window)",
			snap.FailRate*100, cfg.FailureRateThreshold*100, snap.Failed, finished, snap.LookbackHours),
		Details: map[string]any{
			"failure_rate": snap.FailRate,
			"threshold":    cfg.FailureRateThreshold,
			"failed":       snap.Failed,
			"finished":     finished,
			"error_codes":  snap.ErrorCodes,
		},
	}, true
}

func lastFailedRule(_ config.MonitoringConfig, snap *Snapshot) (Alert, bool) {
	f := snap.LastFailure
	if f == nil {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertLastFailed,
		Severity: SeverityMedium,
		Message:  fmt.Sprintf("activity %d failed with %s", f.ActivityID, f.Code),
		Details:  map[string]any{"activity_id": f.ActivityID, "code": f.Code, "text": f.Text},
	}, true
}

func staleRule(cfg config.MonitoringConfig, snap *Snapshot) (Alert, bool) {
	if snap.Stale == 0 {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertStaleActivity,
		Severity: SeverityMedium,
		Message:  fmt.Sprintf("%d open activities started more than %s ago", snap.Stale, cfg.StaleAfter),
		Details:  map[string]any{"stale": snap.Stale, "running": snap.Running},
	}, true
}

// SendAlerts posts each alert to the webhook, retrying transient failures.
// It returns how many were delivered; with no webhook configured nothing
// is sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" {
		return 0
	}
	sent := 0
	for _, alert := range alerts {
		_, err := resilience.Retry(ctx, a.backoff, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, a.post(ctx, alert)
		})
		if err != nil {
			zap.L().Error("monitoring: alert not delivered",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert delivered",
			zap.String("type", string(alert.Type)),
			zap.String("severity", string(alert.Severity)),
		)
		sent++
	}
	return sent
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("monitoring: webhook status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.Transient(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
