// Package main is the entrypoint for the messaging gateway HTTP service.
// It serves message sends, balance checks and OTP issuance over JSON.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aelexs/messaging-gateway/internal/bootstrap"
	"github.com/aelexs/messaging-gateway/internal/config"
	"github.com/aelexs/messaging-gateway/internal/server"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	return server.Run(ctx, server.Params{
		Name:           "messagingd",
		Version:        version,
		PortFromConfig: func(cfg *config.Config) int { return cfg.HTTPPort },
		Routes:         bootstrap.Routes,
	}, nil)
}
