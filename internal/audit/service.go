// Package audit emits governance events to the audit subsystem's store.
// The governance engine only writes records; retention and querying of audit
// data are owned elsewhere.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event kinds written by the governance surface.
const (
	EventPreflightDenied = "PREFLIGHT_DENIED"
	EventRunStarted      = "RUN_STARTED"
	EventSettingsChanged = "SETTINGS_CHANGED"
	EventSettingsReset   = "SETTINGS_RESET"
	EventExportDecision  = "EXPORT_DECISION"
	EventBreakGlass      = "BREAK_GLASS"
	EventRetentionPurge  = "RETENTION_PURGE"
)

// Event is one governance audit record.
type Event struct {
	TenantID string
	ActorID  string
	Kind     string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// Recorder persists governance events.
type Recorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRecorder constructs a Recorder.
func NewRecorder(pool *pgxpool.Pool, logger *slog.Logger) *Recorder {
	return &Recorder{pool: pool, logger: logger}
}

// Record writes the event. The timestamp defaults to NOW() when unset.
func (r *Recorder) Record(ctx context.Context, e Event) error {
	if r == nil || r.pool == nil {
		return errors.New("audit: recorder not initialised")
	}
	if e.TenantID == "" || e.Kind == "" {
		return errors.New("audit: event requires tenant and kind")
	}
	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return err
	}
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO governance_events (tenant_id, actor_id, kind, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.TenantID, e.ActorID, e.Kind, e.Entity, e.EntityID, meta, at)
	if err != nil && r.logger != nil {
		r.logger.Error("record governance event", slog.String("kind", e.Kind), slog.Any("error", err))
	}
	return err
}
