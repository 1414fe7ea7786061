// Package audit records auth-flow events (logins, OTP issuance, registration,
// logouts) for later review. Writes are best-effort and never fail the caller.
package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"lm-identity/internal/audit/domain"
	auditrepo "lm-identity/internal/audit/repository"
	"lm-identity/internal/telemetry"
	telemetrydomain "lm-identity/internal/telemetry/domain"
)

// SentinelOrgID is the org_id used for events that have no organization
// (e.g. a failed login for an unknown email).
const SentinelOrgID = "_system"

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
type AuditLogger interface {
	LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository, an optional IP
// extractor, and an optional telemetry emitter that mirrors every entry as a
// telemetry event.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	emitter     telemetry.EventEmitter
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor
// for the client IP. ipExtractor may be nil; then IP is recorded as "unknown".
// emitter may be nil; then no telemetry event is emitted.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, emitter telemetry.EventEmitter) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, emitter: emitter}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string) {
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	if orgID == "" {
		orgID = SentinelOrgID
	}
	now := time.Now().UTC()

	if l.repo != nil {
		entry := &domain.AuditLog{
			ID:        uuid.New().String(),
			OrgID:     orgID,
			UserID:    userID,
			Action:    action,
			Resource:  resource,
			IP:        ip,
			Metadata:  metadata,
			CreatedAt: now,
		}
		if err := l.repo.Create(ctx, entry); err != nil {
			log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
		}
	}

	if l.emitter != nil {
		event := &telemetrydomain.Event{
			OrgID:     orgID,
			UserID:    userID,
			EventType: action,
			Source:    "lm-identity",
			CreatedAt: now,
		}
		if json.Valid([]byte(metadata)) {
			event.Metadata = json.RawMessage(metadata)
		}
		telemetry.EmitAsync(l.emitter, ctx, event)
	}
}

// Nop is an AuditLogger that drops every event. Useful in tests and tools.
type Nop struct{}

func (Nop) LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string) {}
