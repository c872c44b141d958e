package core

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// ConnectionString holds the fields of a relay connection string of the form
// Endpoint=sb://ns/;SharedAccessKeyName=..;SharedAccessKey=..;EntityPath=..
type ConnectionString struct {
	Endpoint            string
	SharedAccessKeyName string
	SharedAccessKey     string
	EntityPath          string
}

// Namespace returns the host part of the endpoint.
func (c *ConnectionString) Namespace() string {
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Host == "" {
		return strings.Trim(strings.TrimPrefix(c.Endpoint, "sb://"), "/")
	}
	return u.Host
}

// ParseConnectionString splits s into its known keys. Keys are matched without
// regard to case. Unknown keys are ignored.
func ParseConnectionString(s string) (*ConnectionString, error) {
	var c ConnectionString
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, errors.Wrapf(ErrInvalidMapping, "connection string segment %q has no value", part)
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "endpoint":
			c.Endpoint = v
		case "sharedaccesskeyname":
			c.SharedAccessKeyName = v
		case "sharedaccesskey":
			c.SharedAccessKey = v
		case "entitypath":
			c.EntityPath = v
		}
	}
	if c.Endpoint == "" {
		return nil, errors.Wrap(ErrInvalidMapping, "connection string has no Endpoint")
	}
	return &c, nil
}

// ApplyConnectionString fills empty mapping fields from c.
func (m *ConnectionMapping) ApplyConnectionString(c *ConnectionString) {
	if m.Name == "" {
		m.Name = c.EntityPath
	}
	if m.Namespace == "" {
		m.Namespace = c.Namespace()
	}
	if m.PolicyName == "" {
		m.PolicyName = c.SharedAccessKeyName
	}
	if m.PolicyKey == "" {
		m.PolicyKey = c.SharedAccessKey
	}
}
