// Package audit records best-effort events on session and grading
// operations. A failed write is logged and swallowed; it must never fail the
// primary operation.
package audit

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/model"
	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/store"
)

// Event kinds recorded by the session and grading layers.
const (
	KindSessionStart   = "session.start"
	KindSessionSubmit  = "session.submit"
	KindSessionExpire  = "session.expire"
	KindManualGrade    = "grading.manual"
	KindResultsPublish = "results.publish"
	KindTelemetry      = "session.telemetry"
)

// Sink consumes audit events.
type Sink interface {
	Record(e model.AuditEvent)
}

// StoreSink persists events to the audit_events table.
type StoreSink struct {
	store *store.Store
}

func NewStoreSink(s *store.Store) *StoreSink {
	return &StoreSink{store: s}
}

// Record persists the event, filling in the id and timestamp when absent.
func (s *StoreSink) Record(e model.AuditEvent) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if err := s.store.InsertAuditEvent(e); err != nil {
		slog.Warn("audit record failed", "kind", e.Kind, "error", err)
	}
}

// Nop discards all events. Used in tests.
type Nop struct{}

func (Nop) Record(model.AuditEvent) {}
