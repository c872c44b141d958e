// Package core contains the types shared by the passage forwarding pipeline:
// connection mappings, inbound requests, connection state, and the error
// taxonomy.
package core

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"hop.computer/passage/pkg/combinators"
)

// ConnectionMapping binds one relay connection to one local HTTP target. It is
// immutable once loaded.
type ConnectionMapping struct {
	Name       string
	Namespace  string
	PolicyName string
	PolicyKey  string

	TargetHTTP   string
	TargetScheme string
	TargetHost   string
	TargetPort   string
	TargetQuery  string

	// Subpath overrides the default "/{Name}/" prefix stripped from inbound
	// paths.
	Subpath string

	// SourceErr is set when the mapping's connection string could not be
	// parsed. Validate reports it.
	SourceErr error
}

// ConnectionSubpath returns the prefix removed from inbound request paths. It
// always starts and ends with a slash.
func (m *ConnectionMapping) ConnectionSubpath() string {
	p := combinators.StringOr(m.Subpath, m.Name)
	p = strings.Trim(p, "/")
	if p == "" {
		return "/"
	}
	return "/" + p + "/"
}

// Target resolves TargetHTTP and applies the scheme, host, port, and query
// overrides. Non-empty overrides replace the corresponding part of TargetHTTP.
func (m *ConnectionMapping) Target() (*url.URL, error) {
	var u *url.URL
	if m.TargetHTTP != "" {
		var err error
		u, err = url.Parse(m.TargetHTTP)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidMapping, "target %q: %s", m.TargetHTTP, err)
		}
	} else {
		u = &url.URL{}
	}
	u.Scheme = combinators.StringOr(m.TargetScheme, u.Scheme)
	host := combinators.StringOr(m.TargetHost, u.Hostname())
	port := combinators.StringOr(m.TargetPort, u.Port())
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else {
		u.Host = host
	}
	if m.TargetQuery != "" {
		u.RawQuery = strings.TrimPrefix(m.TargetQuery, "?")
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Wrapf(ErrInvalidMapping, "target scheme %q is not http or https", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.Wrapf(ErrInvalidMapping, "connection %q has no target host", m.Name)
	}
	return u, nil
}

// Validate checks that the mapping can be served.
func (m *ConnectionMapping) Validate() error {
	if m.SourceErr != nil {
		return m.SourceErr
	}
	if strings.TrimSpace(m.Name) == "" {
		return errors.Wrap(ErrInvalidMapping, "missing connection name")
	}
	if strings.ContainsAny(m.Name, "/?#") {
		return errors.Wrapf(ErrInvalidMapping, "connection name %q contains a path separator", m.Name)
	}
	_, err := m.Target()
	return err
}

// RelayAddress is the public address of the connection as shown to operators.
func (m *ConnectionMapping) RelayAddress() string {
	if m.Namespace == "" {
		return m.Name
	}
	return fmt.Sprintf("https://%s/%s", m.Namespace, m.Name)
}

// Forwarding is the "relay --> target" line shown in the console header.
func (m *ConnectionMapping) Forwarding() string {
	target := m.TargetHTTP
	if u, err := m.Target(); err == nil {
		target = u.String()
	}
	return fmt.Sprintf("%s --> %s", m.RelayAddress(), target)
}
