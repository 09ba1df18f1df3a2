package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/DanielPopoola/fetchcache/internal/application/services"
)

func newGetCmd() *cobra.Command {
	var (
		params  []string
		timeout time.Duration
		meta    bool
	)

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Perform one cached GET and print the payload.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			p, err := parseParams(params)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, newProber(cfg.Connectivity), nil, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			var opts []services.RequestOption
			if timeout > 0 {
				opts = append(opts, services.WithTimeout(timeout))
			}

			result, err := a.service.GetResult(ctx, args[0], p, opts...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if meta {
				fmt.Fprintf(cmd.ErrOrStderr(), "source=%s stored_at=%s\n",
					result.Source, result.StoredAt.UTC().Format(time.RFC3339))
			}

			var pretty any
			if err := json.Unmarshal(result.Data, &pretty); err != nil {
				_, err = out.Write(append(result.Data, '\n'))
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(pretty)
		},
	}

	cmd.Flags().StringArrayVar(&params, "param", nil, "query parameter as key=value, repeatable")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "request timeout, overrides FETCHD_CLIENT__TIMEOUT")
	cmd.Flags().BoolVar(&meta, "meta", false, "print where the payload came from to stderr")
	return cmd
}

func newInvalidateCmd() *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "invalidate <path>",
		Short: "Drop the cached entry for one path and parameter set.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			p, err := parseParams(params)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, newProber(cfg.Connectivity), nil, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			a.service.Invalidate(ctx, args[0], p)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&params, "param", nil, "query parameter as key=value, repeatable")
	return cmd
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry, leaving other stored keys alone.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, newProber(cfg.Connectivity), nil, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			a.service.ClearAll(ctx)
			return nil
		},
	}
}
