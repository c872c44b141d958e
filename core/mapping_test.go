package core

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"gotest.tools/assert"
	"gotest.tools/assert/cmp"
)

type targetTestInput struct {
	m   ConnectionMapping
	out string
	e   bool
}

var targetInputs = []targetTestInput{
	{
		m:   ConnectionMapping{Name: "svc", TargetHTTP: "http://localhost:5000"},
		out: "http://localhost:5000",
	},
	{
		m:   ConnectionMapping{Name: "svc", TargetHTTP: "http://localhost:5000/api/"},
		out: "http://localhost:5000/api/",
	},
	{
		m:   ConnectionMapping{Name: "svc", TargetHTTP: "http://localhost:5000", TargetPort: "8080", TargetScheme: "https"},
		out: "https://localhost:8080",
	},
	{
		m:   ConnectionMapping{Name: "svc", TargetHost: "10.0.0.1", TargetPort: "80", TargetQuery: "?code=abc"},
		out: "http://10.0.0.1:80?code=abc",
	},
	{
		m:   ConnectionMapping{Name: "svc", TargetHTTP: "http://localhost:5000?a=1", TargetHost: "example.com"},
		out: "http://example.com:5000?a=1",
	},
	{
		m: ConnectionMapping{Name: "svc", TargetHTTP: "ftp://localhost"},
		e: true,
	},
	{
		m: ConnectionMapping{Name: "svc"},
		e: true,
	},
	{
		m: ConnectionMapping{Name: "svc", TargetHTTP: "http://[::1"},
		e: true,
	},
}

func TestTarget(t *testing.T) {
	for i, in := range targetInputs {
		in := in
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			u, err := in.m.Target()
			if in.e {
				assert.Check(t, errors.Is(err, ErrInvalidMapping))
				return
			}
			assert.NilError(t, err)
			assert.Check(t, cmp.Equal(in.out, u.String()))
		})
	}
}

func TestConnectionSubpath(t *testing.T) {
	m := ConnectionMapping{Name: "svc"}
	assert.Equal(t, "/svc/", m.ConnectionSubpath())
	m.Subpath = "/other/prefix"
	assert.Equal(t, "/other/prefix/", m.ConnectionSubpath())
	m = ConnectionMapping{}
	assert.Equal(t, "/", m.ConnectionSubpath())
}

func TestValidate(t *testing.T) {
	ok := ConnectionMapping{Name: "svc", TargetHTTP: "http://localhost:5000"}
	assert.NilError(t, ok.Validate())

	noName := ConnectionMapping{TargetHTTP: "http://localhost:5000"}
	assert.Check(t, errors.Is(noName.Validate(), ErrInvalidMapping))

	slash := ConnectionMapping{Name: "a/b", TargetHTTP: "http://localhost:5000"}
	assert.Check(t, errors.Is(slash.Validate(), ErrInvalidMapping))

	_, parseErr := ParseConnectionString("Endpoint")
	unparsed := ConnectionMapping{Name: "svc", TargetHTTP: "http://localhost:5000", SourceErr: parseErr}
	assert.Check(t, errors.Is(unparsed.Validate(), ErrInvalidMapping))
}

func TestForwarding(t *testing.T) {
	m := ConnectionMapping{Name: "svc", Namespace: "ns.example.net", TargetHTTP: "http://localhost:5000"}
	assert.Equal(t, "https://ns.example.net/svc --> http://localhost:5000", m.Forwarding())
}

func TestParseConnectionString(t *testing.T) {
	c, err := ParseConnectionString("Endpoint=sb://ns.example.net/;SharedAccessKeyName=listen;SharedAccessKey=c2VjcmV0=;EntityPath=svc")
	assert.NilError(t, err)
	assert.Equal(t, "ns.example.net", c.Namespace())
	assert.Equal(t, "listen", c.SharedAccessKeyName)
	assert.Equal(t, "c2VjcmV0=", c.SharedAccessKey)
	assert.Equal(t, "svc", c.EntityPath)

	var m ConnectionMapping
	m.ApplyConnectionString(c)
	assert.DeepEqual(t, ConnectionMapping{
		Name:       "svc",
		Namespace:  "ns.example.net",
		PolicyName: "listen",
		PolicyKey:  "c2VjcmV0=",
	}, m)

	_, err = ParseConnectionString("SharedAccessKeyName=listen")
	assert.Check(t, errors.Is(err, ErrInvalidMapping))
	_, err = ParseConnectionString("Endpoint")
	assert.Check(t, errors.Is(err, ErrInvalidMapping))
}
