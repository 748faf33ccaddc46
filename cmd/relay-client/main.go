// Command relay-client connects to a relay's WebSocket endpoint and
// prints every broadcast message it receives, reconnecting with
// backoff whenever the connection drops.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pushrelay/pushrelay/internal/client"
	"github.com/pushrelay/pushrelay/internal/logging"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "relay WebSocket endpoint")
	logLevel := flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	flag.Parse()

	logging.InitLogger(*logLevel, "text")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := client.New(*url, func(payload []byte) {
		fmt.Println(string(payload))
	})

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Client exited", "error", err)
		os.Exit(1)
	}
}
