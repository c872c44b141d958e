// Package headers filters header sets as they cross the relay boundary.
package headers

import (
	"net/http"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Request headers that are never copied to the local target. Host is derived
// from the target URL and Content-Type from the body.
var requestSkip = []string{"Host", "Content-Type"}

// Response headers that are never copied back to the relay. The relay frames
// the body itself.
var responseSkip = []string{"Transfer-Encoding", "Keep-Alive"}

func skipped(name string, skip []string) bool {
	for _, s := range skip {
		if strings.EqualFold(name, s) {
			return true
		}
	}
	return false
}

func filter(h http.Header, skip []string) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		if skipped(k, skip) {
			continue
		}
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// FilterRequest returns a copy of h without Host and Content-Type. Names are
// compared case-insensitively and values keep their order.
func FilterRequest(h http.Header) http.Header {
	return filter(h, requestSkip)
}

// FilterResponse returns a copy of h without Transfer-Encoding and Keep-Alive.
func FilterResponse(h http.Header) http.Header {
	return filter(h, responseSkip)
}

// Join flattens h for transports that carry a single value per header,
// joining repeated values with ",".
func Join(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		out[k] = strings.Join(vs, ",")
	}
	return out
}

// Names returns the header names of h in sorted order.
func Names(h http.Header) []string {
	names := maps.Keys(h)
	slices.Sort(names)
	return names
}
