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
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/blacktop/lipost/internal/config"
	"github.com/blacktop/lipost/internal/credentials"
	"github.com/blacktop/lipost/internal/logutil"
	"github.com/blacktop/lipost/internal/share"
	"github.com/blacktop/lipost/internal/share/bluesky"
	"github.com/blacktop/lipost/internal/share/linkedin"
	"github.com/blacktop/lipost/internal/share/mastodon"
	"github.com/blacktop/lipost/internal/share/twitter"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var allTargets = []string{"bluesky", "linkedin", "mastodon", "twitter"}

type postOptions struct {
	message     string
	kind        string
	url         string
	title       string
	description string
	media       []string
	hashtags    []string
	targets     []string
	user        string
	dryRun      bool
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCommand().ExecuteContext(ctx)
}

func newRootCommand() *cobra.Command {
	opts := &postOptions{}
	var verbose bool

	cmd := &cobra.Command{
		Use:   "lipost [message]",
		Short: "Share posts on LinkedIn",
		Long: "lipost publishes text, article, image and video posts to LinkedIn, " +
			"and can cross-post the same update to Bluesky, Mastodon and X.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			logutil.SetVerbose(verbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPost(cmd, args, opts)
		},
		Example: `  lipost "Shipped v2 today"
  lipost -m "Worth a read" --url https://go.dev/blog --title "The Go Blog"
  lipost "Launch day" --media ./shot1.png --media ./shot2.png --hashtag golang
  echo "Release shipped" | lipost --target all`,
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "Enable debug logging")

	f := cmd.Flags()
	f.StringVarP(&opts.message, "message", "m", "", "Post text")
	f.StringVar(&opts.kind, "type", "", "Post type: text, article, image or video (inferred when omitted)")
	f.StringVar(&opts.url, "url", "", "Article URL")
	f.StringVar(&opts.title, "title", "", "Title shown with the article or media")
	f.StringVar(&opts.description, "description", "", "Description shown with the article or media")
	f.StringArrayVar(&opts.media, "media", nil, "Image or video file to attach (repeatable)")
	f.StringArrayVar(&opts.hashtags, "hashtag", nil, "Hashtag appended to the text (repeatable)")
	f.StringSliceVar(&opts.targets, "target", []string{"linkedin"}, "Networks to post to (linkedin, bluesky, mastodon, twitter, or all)")
	f.StringVar(&opts.user, "user", "", "Resolve LinkedIn credentials for this Clerk user id")
	f.BoolVar(&opts.dryRun, "dry-run", false, "Print actions without posting")
	f.SortFlags = false

	cmd.AddCommand(
		newEnhanceCommand(),
		newWhoamiCommand(),
		newServeCommand(),
		newCompletionCommand(),
	)

	return cmd
}

func runPost(cmd *cobra.Command, args []string, opts *postOptions) error {
	ctx := cmd.Context()

	message, err := resolveMessage(cmd, args, opts.message)
	if err != nil {
		return err
	}

	targets, err := normalizeTargets(opts.targets)
	if err != nil {
		return err
	}

	attachments, err := loadAttachments(opts.media)
	if err != nil {
		return err
	}

	kind, err := resolveKind(opts.kind, opts.url, attachments)
	if err != nil {
		return err
	}

	req := share.PostRequest{
		Kind: kind,
		Text: appendHashtags(message, opts.hashtags),
		Link: share.Link{
			URL:         strings.TrimSpace(opts.url),
			Title:       strings.TrimSpace(opts.title),
			Description: strings.TrimSpace(opts.description),
		},
		Attachments: attachments,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	if opts.dryRun {
		return dispatch(ctx, dryRunPublishers(targets), req, cmd.OutOrStdout(), true)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if slices.Contains(targets, "linkedin") {
		if err := applyLinkedInCredentials(ctx, cfg, opts.user, &req); err != nil {
			return err
		}
	}

	publishers, err := buildPublishers(ctx, cfg, targets)
	if err != nil {
		return err
	}

	return dispatch(ctx, publishers, req, cmd.OutOrStdout(), false)
}

// resolveMessage takes the text from --message, the arguments, or piped
// stdin, in that order of preference.
func resolveMessage(cmd *cobra.Command, args []string, flagValue string) (string, error) {
	message := flagValue

	if len(args) > 0 {
		if message != "" {
			return "", errors.New("provide the message either as an argument or with --message, not both")
		}
		message = strings.Join(args, " ")
	}

	if strings.TrimSpace(message) != "" {
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

func normalizeTargets(values []string) ([]string, error) {
	seen := map[string]struct{}{}
	result := make([]string, 0, len(values))
	for _, raw := range values {
		raw = strings.TrimSpace(strings.ToLower(raw))
		if raw == "" {
			continue
		}
		if raw == "all" {
			return append([]string(nil), allTargets...), nil
		}
		if !slices.Contains(allTargets, raw) {
			return nil, fmt.Errorf("unsupported target %q", raw)
		}
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}
		result = append(result, raw)
	}

	if len(result) == 0 {
		return nil, errors.New("no targets selected")
	}
	slices.Sort(result)
	return result, nil
}

// resolveKind parses --type, or infers the kind from what was supplied:
// media means image or video, a URL means article, otherwise text.
func resolveKind(flagValue, url string, attachments []share.Attachment) (share.Kind, error) {
	if strings.TrimSpace(flagValue) != "" {
		return share.ParseKind(flagValue)
	}
	switch {
	case len(attachments) > 0:
		videos := 0
		for _, a := range attachments {
			if strings.HasPrefix(a.ContentType, "video/") {
				videos++
			}
		}
		switch videos {
		case 0:
			return share.KindImage, nil
		case len(attachments):
			return share.KindVideo, nil
		default:
			return share.KindText, share.ConfigurationError{Reason: "video and image attachments cannot be mixed in one post"}
		}
	case strings.TrimSpace(url) != "":
		return share.KindArticle, nil
	default:
		return share.KindText, nil
	}
}

func loadAttachments(paths []string) ([]share.Attachment, error) {
	attachments := make([]share.Attachment, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read media: %w", err)
		}
		contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		attachments = append(attachments, share.Attachment{
			Name:        filepath.Base(path),
			ContentType: contentType,
			Data:        data,
		})
	}
	return attachments, nil
}

func appendHashtags(text string, tags []string) string {
	var formatted []string
	for _, tag := range tags {
		tag = strings.TrimLeft(strings.TrimSpace(tag), "#")
		if tag == "" {
			continue
		}
		formatted = append(formatted, "#"+strings.ReplaceAll(tag, " ", ""))
	}
	if len(formatted) == 0 {
		return text
	}
	return text + "\n\n" + strings.Join(formatted, " ")
}

// applyLinkedInCredentials fills the token and author, from Clerk when a
// user id is given and from the environment otherwise.
func applyLinkedInCredentials(ctx context.Context, cfg *config.Config, userID string, req *share.PostRequest) error {
	if strings.TrimSpace(userID) == "" {
		if err := cfg.ValidateFor("linkedin"); err != nil {
			return err
		}
		req.AccessToken = cfg.LinkedIn.AccessToken
		req.AuthorID = cfg.LinkedIn.PersonID
		return nil
	}

	resolver, err := newResolver(cfg)
	if err != nil {
		return err
	}
	creds, err := resolver.Resolve(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve LinkedIn credentials: %w", err)
	}
	logutil.Debugf("resolved LinkedIn member %s", creds.Subject)
	req.AccessToken = creds.AccessToken
	req.AuthorID = creds.Subject
	return nil
}

func newResolver(cfg *config.Config) (*credentials.ClerkResolver, error) {
	if err := cfg.ValidateFor("clerk"); err != nil {
		return nil, err
	}
	return credentials.NewClerkResolver(credentials.Config{
		SecretKey:     cfg.Clerk.SecretKey,
		ClerkURL:      cfg.Clerk.APIURL,
		LinkedInURL:   cfg.LinkedIn.APIURL,
		OAuthProvider: cfg.Clerk.OAuthProvider,
		Timeout:       cfg.HTTPTimeout,
	})
}

func buildPublishers(ctx context.Context, cfg *config.Config, targets []string) ([]share.Publisher, error) {
	constructors := map[string]func(context.Context) (share.Publisher, error){
		"linkedin": func(context.Context) (share.Publisher, error) {
			return linkedin.New(linkedin.Config{APIURL: cfg.LinkedIn.APIURL, Timeout: cfg.HTTPTimeout}), nil
		},
		"bluesky": func(ctx context.Context) (share.Publisher, error) {
			return bluesky.New(ctx, bluesky.Config{
				Handle:      cfg.Bluesky.Handle,
				AppPassword: cfg.Bluesky.AppPassword,
				PDSURL:      cfg.Bluesky.PDSURL,
				Timeout:     cfg.HTTPTimeout,
			})
		},
		"mastodon": func(context.Context) (share.Publisher, error) {
			return mastodon.New(mastodon.Config{
				Server:       cfg.Mastodon.Server,
				AccessToken:  cfg.Mastodon.AccessToken,
				ClientID:     cfg.Mastodon.ClientID,
				ClientSecret: cfg.Mastodon.ClientSecret,
				Timeout:      cfg.HTTPTimeout,
			})
		},
		"twitter": func(context.Context) (share.Publisher, error) {
			return twitter.New(twitter.Config{
				APIKey:       cfg.Twitter.ConsumerKey,
				APISecret:    cfg.Twitter.ConsumerSecret,
				AccessToken:  cfg.Twitter.AccessToken,
				AccessSecret: cfg.Twitter.AccessTokenSecret,
				Debug:        cfg.Twitter.Debug,
				Timeout:      cfg.HTTPTimeout,
			})
		},
	}

	publishers := make([]share.Publisher, 0, len(targets))
	var errs []error
	for _, target := range targets {
		constructor, ok := constructors[target]
		if !ok {
			errs = append(errs, fmt.Errorf("target %q is not implemented", target))
			continue
		}
		if target != "linkedin" {
			if err := cfg.ValidateFor(target); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		publisher, err := constructor(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
			continue
		}
		publishers = append(publishers, publisher)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return publishers, nil
}

// namedTarget stands in for a publisher during a dry run.
type namedTarget string

func (n namedTarget) Name() string { return string(n) }

func (n namedTarget) Publish(context.Context, share.PostRequest) (share.Result, error) {
	return share.Result{}, fmt.Errorf("%s: dry run", n)
}

func dryRunPublishers(targets []string) []share.Publisher {
	out := make([]share.Publisher, 0, len(targets))
	for _, t := range targets {
		out = append(out, namedTarget(t))
	}
	return out
}

func dispatch(ctx context.Context, publishers []share.Publisher, req share.PostRequest, out io.Writer, simulate bool) error {
	if simulate {
		for _, p := range publishers {
			fmt.Fprintf(out, "[dry-run] would post %s to %s: %q\n", req.Kind, p.Name(), req.Text)
		}
		if req.Link.URL != "" {
			fmt.Fprintf(out, "[dry-run] link: %s\n", req.Link.URL)
		}
		for _, a := range req.Attachments {
			fmt.Fprintf(out, "[dry-run] media: %s (%s, %d bytes)\n", a.Name, a.ContentType, len(a.Data))
		}
		return nil
	}

	var errs []error
	for _, p := range publishers {
		fmt.Fprintf(out, "posting to %s...\n", p.Name())
		res, err := p.Publish(ctx, req)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		if res.URL != "" {
			fmt.Fprintf(out, "posted to %s: %s (%s)\n", p.Name(), res.PostID, res.URL)
		} else {
			fmt.Fprintf(out, "posted to %s: %s\n", p.Name(), res.PostID)
		}
	}

	return errors.Join(errs...)
}
