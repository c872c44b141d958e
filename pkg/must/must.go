// Package must contains helpers that panic on error instead of returning it.
// They are meant for fixtures and constant inputs.
package must

import (
	"github.com/pkg/errors"
)

// Do takes any value and error pair, and panics if the error is non-nil. Use it
// wrapping another function call that returns two values, to get a single
// statement that only returns one value.
//
// Example:
//
//	u := must.Do(url.Parse("http://localhost:3000"))
func Do[T any](v T, err error) T {
	if err != nil {
		panic(errors.Wrap(err, "must"))
	}
	return v
}

// NoError panics if err is non-nil.
func NoError(err error) {
	if err != nil {
		panic(errors.Wrap(err, "must"))
	}
}
