package core

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// InboundRequest is a request delivered by the relay.
type InboundRequest struct {
	ID            string
	Method        string
	URL           *url.URL
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
	RemoteAddr    string
	Received      time.Time
}

// PathAndQuery returns the decoded path followed by the raw query, if any.
func (r *InboundRequest) PathAndQuery() string {
	if r.URL == nil {
		return ""
	}
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + r.URL.RawQuery
}

// ConnectionState is the observed connectivity of a relay listener.
type ConnectionState int

// ConnectionState values.
const (
	Connecting ConnectionState = iota
	Online
	Offline
	Closed
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Online:
		return "Online"
	case Offline:
		return "Offline"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ConnectionState) UnmarshalText(b []byte) error {
	for c := Connecting; c <= Closed; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", b)
}
