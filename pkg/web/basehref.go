package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rhuss/appcommon/pkg/debug"
)

const baseHrefPattern = `<base href="%s">`

// BaseHrefFilter rewrites <base href="from"> to <base href="to"> in HTML
// responses. The match is literal: case, quoting and whitespace must be
// exactly as written by the pattern.
type BaseHrefFilter struct {
	from []byte
	to   []byte
}

// NewBaseHrefFilter reads the fromHref and toHref parameters.
func NewBaseHrefFilter(params Params) (*BaseHrefFilter, error) {
	from, err := params.Require("fromHref")
	if err != nil {
		return nil, err
	}
	to, err := params.Require("toHref")
	if err != nil {
		return nil, err
	}
	return &BaseHrefFilter{
		from: []byte(fmt.Sprintf(baseHrefPattern, from)),
		to:   []byte(fmt.Sprintf(baseHrefPattern, to)),
	}, nil
}

// Wrap buffers the whole downstream response before writing it.
func (f *BaseHrefFilter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bw := &bufferedWriter{ResponseWriter: w}
		next.ServeHTTP(bw, r)

		body := bw.buf.Bytes()
		if strings.Contains(w.Header().Get("Content-Type"), "text/html") {
			if out := bytes.ReplaceAll(body, f.from, f.to); !bytes.Equal(out, body) {
				debug.Log("web", "base href rewritten", "path", r.URL.Path, "from", string(f.from), "to", string(f.to))
				w.Header().Set("Content-Length", strconv.Itoa(len(out)))
				body = out
			}
		}

		w.WriteHeader(bw.statusCode())
		if len(body) > 0 {
			w.Write(body)
		}
	})
}

// bufferedWriter captures the status and body. Headers go straight to the
// wrapped writer since nothing is sent until the handler returns.
type bufferedWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (b *bufferedWriter) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	return b.buf.Write(p)
}

func (b *bufferedWriter) WriteString(s string) (int, error) {
	return b.buf.WriteString(s)
}

func (b *bufferedWriter) statusCode() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}
