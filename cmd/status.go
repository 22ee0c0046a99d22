package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blacktop/socialcast/internal/logutil"
	"github.com/blacktop/socialcast/internal/social"
	"github.com/spf13/cobra"
)

func newTestCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test [platform...]",
		Short: "Check that credentials are accepted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			targets, err := parsePlatforms(args)
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				targets = a.cfg.Enabled()
			}
			if err := a.register(cmd.Context(), targets); err != nil {
				logutil.Warnf("%v", err)
			}

			results := a.manager.TestAllConnections(cmd.Context())
			if root.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			failed := 0
			for _, p := range social.Platforms() {
				ok, tested := results[p]
				if !tested {
					continue
				}
				mark := "✓"
				if !ok {
					mark = "✗"
					failed++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", mark, p)
			}
			if len(results) == 0 {
				return errors.New("no platforms connected")
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d connections failed", failed, len(results))
			}
			return nil
		},
	}
}

func newHealthCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report the health of every stored connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.register(cmd.Context(), a.cfg.Enabled()); err != nil {
				logutil.Warnf("%v", err)
			}
			report := a.manager.HealthStatus(cmd.Context())
			if root.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			for _, p := range social.Platforms() {
				if s, ok := report.Platforms[p]; ok {
					printStatus(cmd.OutOrStdout(), s)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d healthy, %d warning, %d error\n", report.Healthy, report.Warning, report.Error)
			return nil
		},
	}
}

func newCapabilitiesCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "capabilities [platform...]",
		Aliases: []string{"caps"},
		Short:   "Show what each platform supports",
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := parsePlatforms(args)
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				targets = social.Platforms()
			}

			caps := make([]social.CapabilityDescriptor, 0, len(targets))
			for _, p := range targets {
				c, _ := social.CapabilitiesFor(p)
				caps = append(caps, c)
			}
			if root.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), caps)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %7s %5s %6s %9s %s\n", "PLATFORM", "TEXT", "TAGS", "IMAGES", "VIDEO(s)", "FEATURES")
			for _, c := range caps {
				fmt.Fprintf(out, "%-10s %7d %5d %6d %9d %s\n", c.Platform,
					c.Limits.TextLength, c.Limits.HashtagsMax, c.Limits.ImagesMax, c.Limits.VideoMaxSeconds,
					strings.Join(featureNames(c.Features), ","))
			}
			return nil
		},
	}
}

func featureNames(f social.Features) []string {
	var names []string
	add := func(name string, on bool) {
		if on {
			names = append(names, name)
		}
	}
	add("text", f.Text)
	add("images", f.Images)
	add("video", f.Video)
	add("stories", f.Stories)
	add("reels", f.Reels)
	add("carousel", f.Carousel)
	add("scheduling", f.Scheduling)
	add("hashtags", f.Hashtags)
	add("mentions", f.Mentions)
	add("links", f.Links)
	add("threads", f.Threads)
	return names
}
