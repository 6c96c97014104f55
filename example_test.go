// SPDX-License-Identifier: GPL-3.0-or-later

package meshmq_test

import (
	"context"
	"fmt"
	"time"

	"github.com/bassosimone/meshmq"
)

// This example shows how to register a category with a request-kind
// command. It stops before serving, which would take ListenPlain,
// ListenCurve or ServeRouter.
func Example_registerAndServe() {
	cfg := meshmq.NewConfig()
	srv := meshmq.NewServer(cfg, nil)

	echo, err := srv.AddCategory("echo", meshmq.Access{Level: meshmq.AuthNone})
	if err != nil {
		panic(err)
	}
	if err := echo.AddRequestCommand("ping", func(ctx context.Context, m *meshmq.Message) {
		_ = m.SendReply(m.Body...)
	}); err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// A real embedder calls srv.ListenPlain(ctx, "tcp://127.0.0.1:7000")
	// here; wiring a live socket would make this example depend on the
	// network, so it stops at configuration.
	_ = ctx

	fmt.Println("server configured")
}
