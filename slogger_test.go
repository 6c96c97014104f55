// SPDX-License-Identifier: GPL-3.0-or-later

package meshmq

import (
	"context"
	"log/slog"
	"testing"

	"github.com/bassosimone/slogstub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCapturingLogger returns a logger that captures all log records into
// the returned slice, for asserting on what the ProxyLoop logs without
// depending on stderr formatting.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var records []slog.Record
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			records = append(records, record)
			return nil
		},
	}
	return slog.New(handler), &records
}

func TestDefaultSLoggerDiscardsSilently(t *testing.T) {
	logger := DefaultSLogger()
	assert.NotPanics(t, func() {
		logger.Debug("unreachable", "x", 1)
		logger.Info("unreachable", "x", 1)
	})
}

func TestSlogLoggerSatisfiesSLogger(t *testing.T) {
	logger, records := newCapturingLogger()
	var s SLogger = logger
	s.Info("dropping reply for unknown tag", "owner", "remote:1")

	require.Len(t, *records, 1)
	assert.Equal(t, "dropping reply for unknown tag", (*records)[0].Message)
}
