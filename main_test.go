// SPDX-License-Identifier: GPL-3.0-or-later

package meshmq

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies that no test in this package leaks a goroutine, which
// matters here specifically: the [ProxyLoop], its recv loop, and every
// [WorkerPool] connection actor are all long-lived goroutines that must
// actually exit when their owning context is cancelled or [Server.Stop]
// returns.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
