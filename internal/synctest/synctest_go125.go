//go:build go1.25

package synctest

import (
	"testing"
	"testing/synctest"
)

// Test runs f in an isolated bubble with a fake clock.
func Test(t *testing.T, f func(t *testing.T)) {
	synctest.Test(t, f)
}

// Wait blocks until every other goroutine in the bubble is durably blocked.
func Wait() {
	synctest.Wait()
}
