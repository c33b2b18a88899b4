// alert_escalation.go implements the AlertEscalationJob, which periodically raises the
// priority of pending alerts whose due date falls inside the configured window. Each
// escalation is written to the audit trail as a change made by the system actor, so the
// alert history shows why a priority moved without anyone touching it.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/amiga-fleet/amiga-backend/internal/audit"
	"github.com/amiga-fleet/amiga-backend/internal/config"
	"github.com/amiga-fleet/amiga-backend/internal/db/models"
	"github.com/amiga-fleet/amiga-backend/internal/safego"
	"github.com/amiga-fleet/amiga-backend/internal/telemetry"
)

// EscalateAction is the audit action of a priority raised by the job
const EscalateAction = "ESCALATE_ALERT"

// SystemActor identifies the job in audit records
var SystemActor = audit.Actor{Name: strPtr("system"), Role: strPtr("system")}

// AlertStore is the part of the alert repository the job needs
type AlertStore interface {
	ListDueBefore(ctx context.Context, cutoff time.Time) ([]*models.Alert, error)
	UpdateAlert(ctx context.Context, a *models.Alert) error
}

// AlertEscalationJob periodically escalates alerts that are about to fall due.
type AlertEscalationJob struct {
	alerts   AlertStore
	recorder *audit.Recorder
	interval time.Duration
	window   time.Duration
	now      func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewAlertEscalationJob creates the job. An interval or window that is not positive
// falls back to one hour and seven days respectively.
func NewAlertEscalationJob(alerts AlertStore, recorder *audit.Recorder, cfg config.AlertEscalationConfig) *AlertEscalationJob {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	days := cfg.DaysAhead
	if days <= 0 {
		days = 7
	}
	return &AlertEscalationJob{
		alerts:   alerts,
		recorder: recorder,
		interval: interval,
		window:   time.Duration(days) * 24 * time.Hour,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start runs the job on a background goroutine: once immediately, then on every tick,
// until ctx is cancelled or Stop is called.
func (j *AlertEscalationJob) Start(ctx context.Context) {
	safego.Go("alert-escalation", func() { j.loop(ctx) })
}

func (j *AlertEscalationJob) loop(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	slog.Info("alert escalation job started", "interval", j.interval, "window", j.window)
	j.runLogged(ctx)

	for {
		select {
		case <-ticker.C:
			j.runLogged(ctx)
		case <-j.stopChan:
			slog.Info("alert escalation job stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop signals the loop to exit. Safe to call more than once.
func (j *AlertEscalationJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
}

// runLogged runs one pass; a panic inside it is recovered so the next tick still fires.
func (j *AlertEscalationJob) runLogged(ctx context.Context) {
	var (
		n   int
		err error
	)
	if !safego.Run("alert-escalation", func() { n, err = j.RunOnce(ctx) }) {
		return
	}
	if err != nil {
		slog.Error("alert escalation run failed", "escalated", n, "error", err)
		return
	}
	if n > 0 {
		slog.Info("alerts escalated", "count", n)
	}
}

// RunOnce escalates every pending alert due within the window by one priority step and
// returns how many were changed. A failed update is logged and skipped; only a failed
// query aborts the run.
func (j *AlertEscalationJob) RunOnce(ctx context.Context) (int, error) {
	due, err := j.alerts.ListDueBefore(ctx, j.now().Add(j.window))
	if err != nil {
		return 0, err
	}

	escalated := 0
	for _, alert := range due {
		next := models.NextPriority(alert.Priority)
		if next == alert.Priority {
			continue
		}

		updated := *alert
		updated.Priority = next
		if err := j.alerts.UpdateAlert(ctx, &updated); err != nil {
			slog.Warn("failed to escalate alert", "alert_id", alert.ID, "error", err)
			continue
		}
		escalated++
		telemetry.AlertEscalationsTotal.Inc()

		if j.recorder != nil {
			j.recorder.LogChanges(ctx, audit.ChangeSet{
				Actor:      SystemActor,
				EntityType: audit.EntityAlert,
				EntityID:   alert.ID,
				EntityName: alert.Title,
				Old:        map[string]interface{}{"priority": alert.Priority},
				New:        map[string]interface{}{"priority": next},
				Action:     EscalateAction,
			})
		}
	}
	return escalated, nil
}

func strPtr(s string) *string { return &s }
