package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DanielPopoola/fetchcache/internal/config"
	"github.com/DanielPopoola/fetchcache/internal/domain"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fetchd",
		Short: "Offline-aware caching HTTP client.",
		Long: "fetchd caches GET responses from an upstream API and serves them when the " +
			"upstream is unreachable. Configuration is read from FETCHD_* environment variables.",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newGetCmd(),
		newInvalidateCmd(),
		newClearCmd(),
	)
	return rootCmd
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// parseParams turns repeated k=v flags into Params. A value that parses as a
// JSON number or boolean keeps that type; anything else is a string.
func parseParams(pairs []string) (domain.Params, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	params := make(domain.Params, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid param %q, want key=value", pair)
		}
		params[k] = scalar(v)
	}
	return params, nil
}

func scalar(v string) any {
	dec := json.NewDecoder(bytes.NewBufferString(v))
	dec.UseNumber()

	var parsed any
	if err := dec.Decode(&parsed); err != nil || dec.More() {
		return v
	}
	switch parsed.(type) {
	case json.Number, bool:
		return parsed
	}
	return v
}
