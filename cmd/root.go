/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/blacktop/socialcast/internal/config"
	"github.com/blacktop/socialcast/internal/logutil"
	"github.com/blacktop/socialcast/internal/manager"
	"github.com/blacktop/socialcast/internal/metrics"
	"github.com/blacktop/socialcast/internal/social"
	"github.com/blacktop/socialcast/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// Version is set via ldflags at build time.
var Version = "dev"

type rootOptions struct {
	configPath  string
	verbose     bool
	jsonOutput  bool
	metricsFile string
}

// Execute runs the root command.
func Execute() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "socialcast",
		Short: "Publish one post to many social networks",
		Long: "socialcast publishes the same update to Facebook, Instagram, X, Telegram, Discord, " +
			"YouTube, LinkedIn, Mastodon and Bluesky, and keeps track of each connection's health.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				logutil.SetVerbose(true)
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config.yaml (default: user config dir, if present)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "V", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Print results as JSON")
	cmd.PersistentFlags().StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile-collector path")

	cmd.AddCommand(
		newPostCommand(opts),
		newConnectCommand(opts),
		newDisconnectCommand(opts),
		newRefreshCommand(opts),
		newTestCommand(opts),
		newHealthCommand(opts),
		newCapabilitiesCommand(opts),
		newCompletionCommand(),
	)

	return cmd
}

// app is the per-invocation wiring of config, store, metrics and manager.
type app struct {
	opts     *rootOptions
	cfg      *config.Config
	store    *store.SQLite
	registry *prometheus.Registry
	manager  *manager.Manager
}

func newApp(opts *rootOptions) (*app, error) {
	path := opts.configPath
	if path == "" {
		if def := config.DefaultPath(); def != "" {
			if _, err := os.Stat(def); err == nil {
				path = def
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if !opts.verbose {
		logutil.SetLevel(cfg.Log.Level)
	}
	if opts.metricsFile == "" {
		opts.metricsFile = cfg.Metrics.File
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	registry := prometheus.NewRegistry()
	mopts := []manager.Option{
		manager.WithHTTPClient(&http.Client{Timeout: cfg.HTTP.Timeout.Duration}),
		manager.WithStore(st, cfg.UserID),
		manager.WithMetrics(metrics.New(registry)),
	}
	for _, p := range social.Platforms() {
		if u := cfg.Endpoint(p); u != "" {
			mopts = append(mopts, manager.WithEndpoint(p, u))
		}
	}

	return &app{
		opts:     opts,
		cfg:      cfg,
		store:    st,
		registry: registry,
		manager:  manager.New(mopts...),
	}, nil
}

// Close flushes metrics and releases the store.
func (a *app) Close() error {
	var errs []error
	if a.opts.metricsFile != "" {
		if err := prometheus.WriteToTextfile(a.opts.metricsFile, a.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// register makes targets available on the manager: stored connections first,
// then credentials from the environment for the rest.
func (a *app) register(ctx context.Context, targets []social.Platform) error {
	if _, err := a.manager.LoadFromStore(ctx, a.cfg.Overrides()); err != nil {
		logutil.Warnf("load stored connections: %v", err)
	}

	var errs []error
	for _, p := range targets {
		if a.manager.IsPlatformRegistered(p) {
			continue
		}
		creds, err := a.cfg.Credentials(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := a.manager.RegisterPlatform(p, creds, a.cfg.Override(p)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// parsePlatforms resolves names (or "all") to platforms in enum order.
func parsePlatforms(values []string) ([]social.Platform, error) {
	seen := map[social.Platform]struct{}{}
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if strings.EqualFold(part, "all") {
				return social.Platforms(), nil
			}
			p, err := social.ParsePlatform(part)
			if err != nil {
				return nil, err
			}
			seen[p] = struct{}{}
		}
	}

	out := make([]social.Platform, 0, len(seen))
	for _, p := range social.Platforms() {
		if _, ok := seen[p]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
