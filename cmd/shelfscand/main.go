package main

import (
	"context"
	"errors"
	"log"
	"os"

	"shelfscan/internal/config"
	"shelfscan/internal/daemonrun"
)

func main() {
	configPath, opts := resolveOptions(os.Getenv)

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, opts); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("shelfscand: %v", err)
	}
}
