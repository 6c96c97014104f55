// SPDX-License-Identifier: GPL-3.0-or-later

// Package neterr classifies low-level socket errors into short,
// OS-independent labels suitable for structured logging and metrics,
// wiring meshmq's [meshmq.ErrClassifier] to real syscall errno values
// instead of string-matching error messages.
package neterr

import (
	"context"
	"errors"
	"syscall"
)

// Classify maps err to a short descriptive label (e.g. "ETIMEDOUT",
// "ECONNRESET"), falling back to "" when err is nil or does not
// correspond to any of the recognised syscall-level conditions. It
// checks context errors first since those never carry an errno.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "ETIMEDOUT"
	case errors.Is(err, context.Canceled):
		return "ECANCELED"
	}

	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return ""
	}
	switch errno {
	case errEADDRNOTAVAIL:
		return "EADDRNOTAVAIL"
	case errEADDRINUSE:
		return "EADDRINUSE"
	case errECONNABORTED:
		return "ECONNABORTED"
	case errECONNREFUSED:
		return "ECONNREFUSED"
	case errECONNRESET:
		return "ECONNRESET"
	case errEHOSTUNREACH:
		return "EHOSTUNREACH"
	case errEINVAL:
		return "EINVAL"
	case errEINTR:
		return "EINTR"
	case errENETDOWN:
		return "ENETDOWN"
	case errENETUNREACH:
		return "ENETUNREACH"
	case errENOBUFS:
		return "ENOBUFS"
	case errENOTCONN:
		return "ENOTCONN"
	case errEPROTONOSUPPORT:
		return "EPROTONOSUPPORT"
	case errETIMEDOUT:
		return "ETIMEDOUT"
	default:
		return ""
	}
}
