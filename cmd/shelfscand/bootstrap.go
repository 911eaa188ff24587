package main

import (
	"strings"

	"shelfscan/internal/daemonrun"
)

// Environment overrides for service managers that cannot pass CLI flags.
const (
	envConfigPath = "SHELFSCAN_CONFIG"
	envSocketPath = "SHELFSCAN_SOCKET"
	envLogLevel   = "SHELFSCAN_LOG_LEVEL"
)

func resolveOptions(getenv func(string) string) (string, daemonrun.Options) {
	if getenv == nil {
		return "", daemonrun.Options{}
	}
	return strings.TrimSpace(getenv(envConfigPath)), daemonrun.Options{
		SocketPath: strings.TrimSpace(getenv(envSocketPath)),
		LogLevel:   strings.TrimSpace(getenv(envLogLevel)),
	}
}
