package web

import (
	"net/http"
	"strings"
	"time"
)

const (
	expiredOffset = -24 * time.Hour
	oneYear       = 365 * 24 * time.Hour
)

// CacheControlFilter lets clients cache responses for a year, except for
// request URIs containing one of the disabled substrings.
type CacheControlFilter struct {
	disabledFor []string
	now         func() time.Time
}

// NewCacheControlFilter reads the optional disabledFor parameter, a comma
// separated list of URI substrings. Blank entries are ignored; the others
// are used as written.
func NewCacheControlFilter(params Params) *CacheControlFilter {
	f := &CacheControlFilter{now: time.Now}
	for _, s := range strings.Split(params["disabledFor"], ",") {
		if strings.TrimSpace(s) != "" {
			f.disabledFor = append(f.disabledFor, s)
		}
	}
	return f
}

// DisabledFor returns the configured substrings.
func (f *CacheControlFilter) DisabledFor() []string {
	return f.disabledFor
}

// Wrap sets the caching headers before calling next.
func (f *CacheControlFilter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := f.now()
		if f.disabled(r.RequestURI) {
			DisableCaching(w, now)
		} else {
			h := w.Header()
			h.Set("Date", httpDate(now))
			h.Set("Expires", httpDate(now.Add(oneYear)))
			h.Set("Cache-Control", "public, max-age=31536000")
		}
		next.ServeHTTP(w, r)
	})
}

func (f *CacheControlFilter) disabled(uri string) bool {
	if uri == "" {
		return true
	}
	for _, s := range f.disabledFor {
		if strings.Contains(uri, s) {
			return true
		}
	}
	return false
}

// DisableCaching sets headers that forbid caching of the response.
func DisableCaching(w http.ResponseWriter, now time.Time) {
	h := w.Header()
	h.Set("Date", httpDate(now))
	h.Set("Expires", httpDate(now.Add(expiredOffset)))
	h.Set("Pragma", "no-cache")
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
}

func httpDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}
