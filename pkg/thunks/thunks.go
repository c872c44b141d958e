// Package thunks contains pointers to functions that might be replaced in
// tests.
package thunks

import (
	"os"
	"time"
)

// TimeNow is an alias for time.Now
var TimeNow func() time.Time = time.Now

// LookupEnv is an alias for os.LookupEnv
var LookupEnv func(string) (string, bool) = os.LookupEnv

// SetUpTest replaces thunks with stable test versions.
func SetUpTest() {
	TimeNow = func() time.Time {
		return time.Date(1992, 12, 31, 1, 2, 3, 4, time.UTC)
	}
	LookupEnv = func(string) (string, bool) {
		return "", false
	}
}

// SetEnvForTest makes LookupEnv answer from env only.
func SetEnvForTest(env map[string]string) {
	LookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}
