package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/blacktop/socialcast/internal/social"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const defaultAltText = "Image attached via socialcast"

type postOptions struct {
	message  string
	targets  []string
	images   []string
	videos   []string
	altText  string
	hashtags []string
	link     string
	schedule string
	options  map[string]string
	dryRun   bool
}

func newPostCommand(root *rootOptions) *cobra.Command {
	opts := &postOptions{}
	cmd := &cobra.Command{
		Use:   "post [message]",
		Short: "Publish a post to one or more platforms",
		Example: `  socialcast post "Ship it!" --target twitter --target mastodon
  socialcast post -m "New video" --video https://cdn.example.com/v.mp4 --target youtube
  echo "Release shipped" | socialcast post --target all --hashtag release`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPost(cmd, root, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.message, "message", "m", "", "Message text to post")
	cmd.Flags().StringSliceVarP(&opts.targets, "target", "t", nil, "Platforms to post to (name, comma list, or all; default: enabled in config)")
	cmd.Flags().StringArrayVar(&opts.images, "image", nil, "Image URL to attach (repeatable)")
	cmd.Flags().StringArrayVar(&opts.videos, "video", nil, "Video URL to attach (repeatable)")
	cmd.Flags().StringVar(&opts.altText, "alt-text", "", "Alternative text for attached images")
	cmd.Flags().StringSliceVar(&opts.hashtags, "hashtag", nil, "Hashtags to append")
	cmd.Flags().StringVar(&opts.link, "link", "", "Link to share")
	cmd.Flags().StringVar(&opts.schedule, "schedule", "", "Publish time (RFC3339) on platforms that support scheduling")
	cmd.Flags().StringToStringVarP(&opts.options, "option", "o", nil, "Platform option key=value (e.g. privacy_status=unlisted)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print actions without posting")
	cmd.Flags().SortFlags = false

	return cmd
}

func runPost(cmd *cobra.Command, root *rootOptions, opts *postOptions, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	message, err := resolveMessage(cmd, opts.message, args)
	if err != nil {
		return err
	}
	req, err := buildRequest(message, opts)
	if err != nil {
		return err
	}

	a, err := newApp(root)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
	}()

	targets, err := parsePlatforms(opts.targets)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		targets = a.cfg.Enabled()
	}
	if len(targets) == 0 {
		return errors.New("no targets selected")
	}
	req.Platforms = targets

	if opts.dryRun {
		return dryRun(out, req)
	}

	if err := a.register(ctx, targets); err != nil {
		return err
	}

	result := a.manager.PostToMultiplePlatforms(ctx, req)
	if root.jsonOutput {
		if err := writeJSON(out, result); err != nil {
			return err
		}
	} else {
		printBulk(out, result)
	}

	if result.Summary.Failed > 0 {
		return fmt.Errorf("%d of %d posts failed", result.Summary.Failed, result.Summary.Total)
	}
	return nil
}

func resolveMessage(cmd *cobra.Command, flagValue string, args []string) (string, error) {
	message := flagValue

	if len(args) > 0 {
		if message != "" {
			return "", errors.New("provide the message either as an argument or with --message, not both")
		}
		message = strings.Join(args, " ")
	}

	if message != "" {
		return strings.TrimSpace(message), nil
	}

	stdin := cmd.InOrStdin()
	if file, ok := stdin.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return "", errors.New("message is required")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	message = strings.TrimSpace(string(data))

	if message == "" {
		return "", errors.New("message is required")
	}
	return message, nil
}

func buildRequest(message string, opts *postOptions) (social.PostRequest, error) {
	req := social.PostRequest{
		Text:     message,
		Hashtags: opts.hashtags,
		Link:     strings.TrimSpace(opts.link),
	}

	alt := strings.TrimSpace(opts.altText)
	if alt == "" && len(opts.images) > 0 {
		alt = defaultAltText
	}
	for _, u := range opts.images {
		req.Media = append(req.Media, social.Media{Type: social.MediaImage, URL: u, AltText: alt})
	}
	for _, u := range opts.videos {
		req.Media = append(req.Media, social.Media{Type: social.MediaVideo, URL: u})
	}

	if opts.schedule != "" {
		at, err := time.Parse(time.RFC3339, opts.schedule)
		if err != nil {
			return req, fmt.Errorf("invalid --schedule %q: %w", opts.schedule, err)
		}
		req.ScheduleAt = &at
	}

	if len(opts.options) > 0 {
		req.Options = make(map[string]any, len(opts.options))
		for k, v := range opts.options {
			req.Options[k] = v
		}
	}
	return req, nil
}

func dryRun(out io.Writer, req social.PostRequest) error {
	for _, p := range req.Platforms {
		fmt.Fprintf(out, "[dry-run] would post to %s: %q\n", p, req.Text)
		if caps, ok := social.CapabilitiesFor(p); ok {
			if n := utf8.RuneCountInString(req.Text); caps.Limits.TextLength > 0 && n > caps.Limits.TextLength {
				fmt.Fprintf(out, "[dry-run]   text is %d characters, %s allows %d\n", n, p, caps.Limits.TextLength)
			}
		}
	}
	for _, m := range req.Media {
		fmt.Fprintf(out, "[dry-run] %s: %s (alt: %q)\n", m.Type, m.URL, m.AltText)
	}
	if req.ScheduleAt != nil {
		fmt.Fprintf(out, "[dry-run] scheduled for %s\n", req.ScheduleAt.Format(time.RFC3339))
	}
	return nil
}

func printBulk(out io.Writer, result social.BulkPostResult) {
	for _, r := range result.Results {
		switch r.Status {
		case social.StatusFailed:
			fmt.Fprintf(out, "✗ %-10s %s: %s\n", r.Platform, r.Error.Code, r.Error.Message)
		default:
			line := fmt.Sprintf("✓ %-10s %s %s", r.Platform, r.Status, r.PostID)
			if r.URL != "" {
				line += " " + r.URL
			}
			fmt.Fprintln(out, line)
		}
	}
	s := result.Summary
	fmt.Fprintf(out, "%d published, %d scheduled, %d failed (request %s)\n", s.Successful, s.Pending, s.Failed, result.RequestID)
}
