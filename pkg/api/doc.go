// Package api defines the JSON error envelope shared by all HTTP endpoints.
//
// Every error response has the shape
//
//	{"error": {"type": "...", "message": "...", "param": "..."}}
//
// The package performs no I/O; pkg/transport writes the envelope.
package api
