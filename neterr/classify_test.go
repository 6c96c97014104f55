//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package neterr

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.Equal(t, "", Classify(nil))
	})

	t.Run("context deadline exceeded", func(t *testing.T) {
		assert.Equal(t, "ETIMEDOUT", Classify(context.DeadlineExceeded))
	})

	t.Run("context canceled", func(t *testing.T) {
		assert.Equal(t, "ECANCELED", Classify(context.Canceled))
	})

	t.Run("connection refused errno", func(t *testing.T) {
		assert.Equal(t, "ECONNREFUSED", Classify(errECONNREFUSED))
	})

	t.Run("wrapped errno", func(t *testing.T) {
		wrapped := fmt.Errorf("dial: %w", errECONNRESET)
		assert.Equal(t, "ECONNRESET", Classify(wrapped))
	})

	t.Run("unrecognised error", func(t *testing.T) {
		assert.Equal(t, "", Classify(fmt.Errorf("some unrelated failure")))
	})
}
