package proxy

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"hop.computer/passage/core"
	"hop.computer/passage/headers"
)

// RelativePath removes the first occurrence of the connection subpath from the
// front of p, compared without regard to case. The result always starts with
// "/". Paths that do not carry the subpath are returned unchanged.
func RelativePath(p, subpath string) string {
	if len(p) >= len(subpath) && strings.EqualFold(p[:len(subpath)], subpath) {
		return "/" + p[len(subpath):]
	}
	bare := strings.TrimSuffix(subpath, "/")
	if bare != "" && strings.EqualFold(p, bare) {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

// TargetURL joins the mapping target with the relative path and merges the
// target query with the inbound query.
func TargetURL(base *url.URL, rel string, rawQuery string) *url.URL {
	u := *base
	u.Path = strings.TrimSuffix(base.Path, "/") + rel
	u.RawPath = ""
	switch {
	case base.RawQuery == "":
		u.RawQuery = rawQuery
	case rawQuery == "":
		u.RawQuery = base.RawQuery
	default:
		u.RawQuery = base.RawQuery + "&" + rawQuery
	}
	u.Fragment = ""
	return &u
}

// Translate builds the request sent to the local target for an inbound relayed
// request. The body is streamed, never buffered.
func Translate(ctx context.Context, in *core.InboundRequest, m *core.ConnectionMapping) (*http.Request, error) {
	if in == nil || in.URL == nil {
		return nil, errors.Wrap(core.ErrInvalidRequest, "missing request URL")
	}
	if in.Method == "" {
		return nil, errors.Wrap(core.ErrInvalidRequest, "missing method")
	}
	base, err := m.Target()
	if err != nil {
		return nil, err
	}
	rel := RelativePath(in.URL.Path, m.ConnectionSubpath())
	target := TargetURL(base, rel, in.URL.RawQuery)

	hasBody := in.Body != nil && in.Body != http.NoBody
	var body io.ReadCloser = http.NoBody
	if hasBody {
		body = in.Body
	}
	out, err := http.NewRequestWithContext(ctx, in.Method, target.String(), body)
	if err != nil {
		return nil, errors.Wrapf(core.ErrInvalidRequest, "%s %s: %s", in.Method, target, err)
	}
	out.Header = headers.FilterRequest(in.Header)
	if hasBody {
		out.ContentLength = in.ContentLength
		if in.ContentLength == 0 {
			out.ContentLength = -1
		}
		if ct := in.Header.Get("Content-Type"); ct != "" {
			if _, _, err := mime.ParseMediaType(ct); err == nil {
				out.Header.Set("Content-Type", ct)
			}
		}
	} else {
		out.ContentLength = 0
	}
	return out, nil
}
