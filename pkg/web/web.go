// Package web holds HTTP response filters for serving a single page UI:
// rewriting the HTML base href and setting cache headers.
package web

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingParam is returned when a required filter parameter is absent.
var ErrMissingParam = errors.New("missing filter parameter")

// Params are filter initialisation parameters.
type Params map[string]string

// Require returns the named parameter. A present but empty value is valid.
func (p Params) Require(name string) (string, error) {
	v, ok := p[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrMissingParam, name)
	}
	return v, nil
}

// Filter wraps a handler.
type Filter interface {
	Wrap(next http.Handler) http.Handler
}
