// Package audit records security-relevant events as structured log entries.
//
// A Record carries a category, an action, an outcome, free-form key-value
// metadata and the network origin of the request that caused it. Loggers
// decide where records go; SlogLogger writes them through log/slog and
// Recorder keeps them in memory.
package audit

import (
	"context"
	"net/http"
	"time"
)

// Category is the audit category used for authentication events.
const Category = "app.audit"

// Well-known actions and outcomes.
const (
	ActionAuthenticate = "authenticate"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metadata keys written by the HTTP components.
const (
	KeyMethod       = "method"
	KeyPath         = "path"
	KeyResponseCode = "response_code"
	KeyErrorMsg     = "error_msg"
)

// Record is a single audit event.
type Record struct {
	ID           string            `json:"id"`
	Time         time.Time         `json:"time"`
	Category     string            `json:"category"`
	Action       string            `json:"action"`
	Outcome      string            `json:"outcome"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	SourceIP     string            `json:"source_ip,omitempty"`
	ForwardedFor string            `json:"forwarded_for,omitempty"`
}

// RequestInfo exposes the network origin of a request.
type RequestInfo interface {
	// SourceIP is the remote address as seen by the server.
	SourceIP() string

	// ForwardedFor is the X-Forwarded-For header value, or "" if absent.
	ForwardedFor() string
}

// Logger emits audit records.
type Logger interface {
	Log(ctx context.Context, category, action, outcome string, metadata map[string]string, info RequestInfo)
}

type httpRequestInfo struct {
	sourceIP     string
	forwardedFor string
}

func (i httpRequestInfo) SourceIP() string     { return i.sourceIP }
func (i httpRequestInfo) ForwardedFor() string { return i.forwardedFor }

// HTTPRequestInfo projects r onto RequestInfo. The values are captured
// immediately.
func HTTPRequestInfo(r *http.Request) RequestInfo {
	return httpRequestInfo{
		sourceIP:     r.RemoteAddr,
		forwardedFor: r.Header.Get("X-Forwarded-For"),
	}
}

// Nop discards every record.
type Nop struct{}

func (Nop) Log(context.Context, string, string, string, map[string]string, RequestInfo) {}

func newRecord(id string, now time.Time, category, action, outcome string, metadata map[string]string, info RequestInfo) Record {
	rec := Record{
		ID:       id,
		Time:     now,
		Category: category,
		Action:   action,
		Outcome:  outcome,
	}
	if len(metadata) > 0 {
		rec.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			rec.Metadata[k] = v
		}
	}
	if info != nil {
		rec.SourceIP = info.SourceIP()
		rec.ForwardedFor = info.ForwardedFor()
	}
	return rec
}
