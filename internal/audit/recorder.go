// Package audit provides the best-effort audit capability injected into the
// domain services. Recording failures are logged, never propagated: an audit
// outage must not roll back the operation it describes.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-academic-api/internal/models"
)

// Recorder is the capability the domain services call on every success and
// failure path of a mutating operation.
type Recorder interface {
	Record(ctx context.Context, action, entity, entityID string, status models.AuditStatus, metadata map[string]interface{})
}

type auditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// LogRecorder writes audit entries through a repository.
type LogRecorder struct {
	repo   auditWriter
	logger *zap.Logger
}

// NewLogRecorder constructs a LogRecorder.
func NewLogRecorder(repo auditWriter, logger *zap.Logger) *LogRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogRecorder{repo: repo, logger: logger}
}

// Record persists the entry with a short timeout detached from the caller's
// cancellation, so an aborted request still leaves its failure trail.
func (r *LogRecorder) Record(ctx context.Context, action, entity, entityID string, status models.AuditStatus, metadata map[string]interface{}) {
	var payload []byte
	if metadata != nil {
		encoded, err := json.Marshal(metadata)
		if err != nil {
			r.logger.Warn("audit metadata not serialisable", zap.String("action", action), zap.Error(err))
		} else {
			payload = encoded
		}
	}

	entry := &models.AuditLog{
		Action:   action,
		Entity:   entity,
		Status:   status,
		Metadata: payload,
	}
	if entityID != "" {
		entry.EntityID = &entityID
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := r.repo.Create(writeCtx, entry); err != nil {
		r.logger.Error("audit write failed",
			zap.String("action", action),
			zap.String("entity", entity),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

// NopRecorder discards every entry. Useful in tests.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, string, string, string, models.AuditStatus, map[string]interface{}) {
}
