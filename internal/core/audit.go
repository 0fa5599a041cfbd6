package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/idlookup/internal/logging"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionAdd     AuditAction = "add"
	ActionBulkAdd AuditAction = "bulk_add"
	ActionEdit    AuditAction = "edit"
	ActionDelete  AuditAction = "delete"
	ActionClear   AuditAction = "clear"
	ActionReload  AuditAction = "reload"
	ActionImport  AuditAction = "csv_import"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "low"
	SeverityMedium   AuditSeverity = "medium"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// AuditEntry describes one directory mutation.
type AuditEntry struct {
	ID           string        `json:"id"`
	Action       AuditAction   `json:"action"`
	Severity     AuditSeverity `json:"severity"`
	Privileged   bool          `json:"privileged"`
	IPAddress    string        `json:"ipAddress,omitempty"`
	UserAgent    string        `json:"userAgent,omitempty"`
	Key          string        `json:"key,omitempty"`
	Before       *Record       `json:"before,omitempty"`
	After        *Record       `json:"after,omitempty"`
	RowsAffected int64         `json:"rowsAffected,omitempty"`
	BatchID      string        `json:"batchId,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// AuditRecorder receives audit entries for completed mutations.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// SlogAuditRecorder writes audit entries as structured log records.
type SlogAuditRecorder struct{}

// Record logs entry at a level derived from its severity.
func (SlogAuditRecorder) Record(ctx context.Context, entry AuditEntry) {
	attrs := []any{
		"audit_id", entry.ID,
		"action", entry.Action,
		"severity", entry.Severity,
		"privileged", entry.Privileged,
	}
	if entry.IPAddress != "" {
		attrs = append(attrs, "ip", entry.IPAddress)
	}
	if entry.Key != "" {
		attrs = append(attrs, "key", entry.Key)
	}
	if entry.Before != nil {
		attrs = append(attrs, "before", *entry.Before)
	}
	if entry.After != nil {
		attrs = append(attrs, "after", *entry.After)
	}
	if entry.RowsAffected > 0 {
		attrs = append(attrs, "rows_affected", entry.RowsAffected)
	}
	if entry.BatchID != "" {
		attrs = append(attrs, "batch_id", entry.BatchID)
	}
	if entry.Reason != "" {
		attrs = append(attrs, "reason", entry.Reason)
	}

	level := slog.LevelInfo
	if entry.Severity == SeverityCritical {
		level = slog.LevelWarn
	}
	logging.FromContext(ctx).Log(ctx, level, "audit", attrs...)
}

// determineSeverity returns the appropriate severity for an action.
func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionBulkAdd, ActionImport, ActionDelete:
		return SeverityHigh
	case ActionClear:
		return SeverityCritical
	case ActionReload:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// audit fills the request-derived fields of entry and hands it to the recorder.
func (s *Service) audit(ctx context.Context, entry AuditEntry) {
	entry.ID = uuid.NewString()
	entry.Severity = determineSeverity(entry.Action)
	entry.Privileged = IsPrivileged(ctx)
	entry.IPAddress = GetIPAddressFromContext(ctx)
	entry.UserAgent = GetUserAgentFromContext(ctx)
	entry.CreatedAt = time.Now().UTC()
	s.auditor.Record(ctx, entry)
}

func recordPtr(r Record) *Record { return &r }
