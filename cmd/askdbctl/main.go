package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/askdb/askdb/internal/cli/askdbctl"
	"github.com/askdb/askdb/internal/config"
)

const defaultTimeout = 120 * time.Second

// Flags override ASKDB_API_URL, ASKDB_API_KEY and ASKDB_CLI_TIMEOUT, which
// may also come from the dotenv file.
func main() {
	lookup, err := config.EnvLookup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "askdbctl: %v\n", err)
		os.Exit(2)
	}
	get := func(key string) string {
		value, _ := lookup(key)
		return strings.TrimSpace(value)
	}

	options := askdbctl.Options{
		BaseURL: get("ASKDB_API_URL"),
		APIKey:  get("ASKDB_API_KEY"),
		Timeout: defaultTimeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
	if options.BaseURL == "" {
		options.BaseURL = "http://localhost:8080"
	}
	if raw := get("ASKDB_CLI_TIMEOUT"); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil || timeout <= 0 {
			fmt.Fprintf(os.Stderr, "askdbctl: invalid ASKDB_CLI_TIMEOUT %q\n", raw)
			os.Exit(2)
		}
		options.Timeout = timeout
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := askdbctl.Run(ctx, os.Args[1:], options)
	stop()
	os.Exit(code)
}
