package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/blacktop/lipost/internal/config"
	"github.com/blacktop/lipost/internal/enhance"
	"github.com/blacktop/lipost/internal/share"
	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

func newEnhanceCommand() *cobra.Command {
	var (
		kindFlag string
		render   bool
	)

	cmd := &cobra.Command{
		Use:   "enhance [text]",
		Short: "Rewrite a draft into a LinkedIn post suggestion",
		Example: `  lipost enhance "we shipped v2 of the parser today"
  cat draft.md | lipost enhance --type article`,
		RunE: func(cmd *cobra.Command, args []string) error {
			draft, err := resolveMessage(cmd, args, "")
			if err != nil {
				return err
			}

			kind := share.KindText
			if strings.TrimSpace(kindFlag) != "" {
				if kind, err = share.ParseKind(kindFlag); err != nil {
					return err
				}
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateFor("gemini"); err != nil {
				return err
			}

			enhancer, err := enhance.NewGemini(cmd.Context(), enhance.Config{
				APIKey: cfg.Gemini.APIKey,
				Model:  cfg.Gemini.Model,
			})
			if err != nil {
				return err
			}

			req := enhance.Request{
				Kind:     kind,
				Messages: []enhance.Message{{Role: "user", Content: draft}},
			}
			if render {
				return renderSuggestion(cmd, enhancer, req, cmd.OutOrStdout())
			}
			return streamSuggestion(cmd, enhancer, req, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&kindFlag, "type", "text", "Post type the suggestion is for: text, article, image or video")
	cmd.Flags().BoolVar(&render, "render", false, "Wait for the full suggestion and render its markdown")
	return cmd
}

func streamSuggestion(cmd *cobra.Command, enhancer enhance.Enhancer, req enhance.Request, out io.Writer) error {
	full, err := enhancer.Enhance(cmd.Context(), req, func(chunk string) error {
		_, err := io.WriteString(out, chunk)
		return err
	})
	if err != nil {
		return fmt.Errorf("enhance: %w", err)
	}
	if full == "" {
		return errors.New("enhance: model returned no text")
	}
	if !strings.HasSuffix(full, "\n") {
		fmt.Fprintln(out)
	}
	return nil
}

// renderSuggestion waits for the whole suggestion and pretty-prints the
// markdown instead of streaming raw text.
func renderSuggestion(cmd *cobra.Command, enhancer enhance.Enhancer, req enhance.Request, out io.Writer) error {
	full, err := enhancer.Enhance(cmd.Context(), req, nil)
	if err != nil {
		return fmt.Errorf("enhance: %w", err)
	}
	if strings.TrimSpace(full) == "" {
		return errors.New("enhance: model returned no text")
	}

	rendered, err := glamour.Render(full, "auto")
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	_, err = io.WriteString(out, rendered)
	return err
}
