package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"hop.computer/passage/headers"
)

// Preview is an io.Writer that keeps the first Limit bytes written to it and
// counts the rest. It never fails.
type Preview struct {
	buf   []byte
	limit int
	total int64
}

// NewPreview returns a Preview capped at limit bytes.
func NewPreview(limit int) *Preview {
	return &Preview{limit: limit}
}

func (p *Preview) Write(b []byte) (int, error) {
	p.total += int64(len(b))
	if room := p.limit - len(p.buf); room > 0 {
		if room > len(b) {
			room = len(b)
		}
		p.buf = append(p.buf, b[:room]...)
	}
	return len(b), nil
}

// Bytes returns the captured prefix.
func (p *Preview) Bytes() []byte {
	return p.buf
}

// Total is the number of bytes written, including those not kept.
func (p *Preview) Total() int64 {
	return p.total
}

// Truncated returns true if more was written than was kept.
func (p *Preview) Truncated() bool {
	return p.total > int64(len(p.buf))
}

// String returns the captured prefix as text. Invalid UTF-8 is replaced.
func (p *Preview) String() string {
	return strings.ToValidUTF8(string(p.buf), string(utf8.RuneError))
}

// FormatBody renders a body for verbose logging. Complete JSON documents are
// indented.
func FormatBody(contentType string, body []byte) string {
	mt, _, _ := mime.ParseMediaType(contentType)
	if mt == "application/json" || strings.HasSuffix(mt, "+json") || json.Valid(body) {
		var out bytes.Buffer
		if err := json.Indent(&out, body, "", "  "); err == nil {
			return out.String()
		}
	}
	return strings.ToValidUTF8(string(body), string(utf8.RuneError))
}

// FormatHeader renders h one "Name: value" line per header, sorted by name.
func FormatHeader(h http.Header) string {
	joined := headers.Join(h)
	var b strings.Builder
	for _, name := range headers.Names(h) {
		fmt.Fprintf(&b, "%s: %s\n", name, joined[name])
	}
	return b.String()
}
