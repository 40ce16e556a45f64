package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType names one line of the audit trail.
type AuditEventType string

const (
	// Session events
	AuditSessionStart AuditEventType = "session_start"
	AuditSessionEnd   AuditEventType = "session_end"

	// Bootstrap events
	AuditBootstrap AuditEventType = "bootstrap"
	AuditTrigger   AuditEventType = "trigger"
	AuditReload    AuditEventType = "reload"

	// Decoration lifecycle, same names as the engine's event types
	AuditContainerFound AuditEventType = "container_found"
	AuditItemsChanged   AuditEventType = "items_changed"
	AuditActiveChanged  AuditEventType = "active_changed"
	AuditAttached       AuditEventType = "attached"
	AuditRemoved        AuditEventType = "removed"
)

// AuditEvent is one JSON line of the audit trail.
type AuditEvent struct {
	Timestamp int64          `json:"ts"`                // Unix milliseconds
	EventType AuditEventType `json:"event"`             // What happened
	Category  string         `json:"cat,omitempty"`     // Log category
	SessionID string         `json:"session,omitempty"` // Browser session or scenario name
	RunID     string         `json:"run,omitempty"`     // Engine run
	Target    string         `json:"target,omitempty"`  // URL or file
	Item      int64          `json:"item,omitempty"`    // Active item node
	Mount     int64          `json:"mount,omitempty"`   // Decoration node
	Count     int            `json:"count,omitempty"`   // Items tracked, runs started
	Reuse     bool           `json:"reuse,omitempty"`   // Attach reused an existing mount
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Message   string         `json:"msg,omitempty"`
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditFile *os.File
	auditMu   sync.Mutex
)

// AuditLogger writes audit events scoped to a session.
type AuditLogger struct {
	sessionID string
	category  Category
}

// InitAudit opens (appending) the audit trail at path. Unlike category logging it
// does not depend on debug_mode: an empty path disables it.
func InitAudit(path string) error {
	if path == "" {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil // Already initialized
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	header := fmt.Sprintf("# reelbar audit log started at %s\n", time.Now().Format(time.RFC3339))
	if _, err := auditFile.WriteString(header); err != nil {
		return fmt.Errorf("failed to write audit header: %w", err)
	}
	return nil
}

// CloseAudit closes the audit log file
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		_ = auditFile.Close()
		auditFile = nil
	}
}

// AuditWithSession creates an audit logger scoped to a session
func AuditWithSession(sessionID string) *AuditLogger {
	return &AuditLogger{sessionID: sessionID}
}

// Log writes an audit event
func (a *AuditLogger) Log(event AuditEvent) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.SessionID == "" {
		event.SessionID = a.sessionID
	}
	if event.Category == "" && a.category != "" {
		event.Category = string(a.category)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile == nil {
		return
	}
	_, _ = auditFile.Write(append(data, '\n'))
}

// =============================================================================
// CONVENIENCE METHODS
// =============================================================================

// SessionStart logs the start of a watch or replay.
func (a *AuditLogger) SessionStart(url string) {
	a.Log(AuditEvent{
		EventType: AuditSessionStart,
		Category:  string(CategoryBoot),
		Target:    url,
		Success:   true,
		Message:   fmt.Sprintf("Session started on %s", url),
	})
}

// SessionEnd logs the end of a watch or replay.
func (a *AuditLogger) SessionEnd(duration time.Duration, err error) {
	e := AuditEvent{
		EventType: AuditSessionEnd,
		Category:  string(CategoryBoot),
		Success:   err == nil,
		Message:   fmt.Sprintf("Session ended after %v", duration.Round(time.Millisecond)),
	}
	if err != nil {
		e.Error = err.Error()
	}
	a.Log(e)
}

// Bootstrap logs how many runs a bootstrap started for url.
func (a *AuditLogger) Bootstrap(url string, runs int) {
	a.Log(AuditEvent{
		EventType: AuditBootstrap,
		Category:  string(CategoryEngine),
		Target:    url,
		Count:     runs,
		Success:   true,
	})
}

// Trigger logs a re-bootstrap request.
func (a *AuditLogger) Trigger(id int64, url string) {
	a.Log(AuditEvent{
		EventType: AuditTrigger,
		Category:  string(CategoryBrowser),
		Target:    url,
		Count:     int(id),
		Success:   true,
	})
}

// Reload logs a hot reload of path.
func (a *AuditLogger) Reload(path string, err error) {
	e := AuditEvent{
		EventType: AuditReload,
		Category:  string(CategoryConfig),
		Target:    path,
		Success:   err == nil,
	}
	if err != nil {
		e.Error = err.Error()
	}
	a.Log(e)
}

// Lifecycle logs one decoration lifecycle transition of a run.
func (a *AuditLogger) Lifecycle(eventType AuditEventType, runID string, item, mount int64, count int, reuse bool) {
	cat := CategoryTracker
	if eventType == AuditAttached || eventType == AuditRemoved {
		cat = CategoryDecoration
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Category:  string(cat),
		RunID:     runID,
		Item:      item,
		Mount:     mount,
		Count:     count,
		Reuse:     reuse,
		Success:   true,
	})
}
