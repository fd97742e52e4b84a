package cmd

import (
	"github.com/blacktop/lipost/internal/config"
	"github.com/blacktop/lipost/internal/enhance"
	"github.com/blacktop/lipost/internal/logutil"
	"github.com/blacktop/lipost/internal/server"
	"github.com/blacktop/lipost/internal/share/linkedin"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var (
		addr    string
		logJSON bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logutil.SetJSON(logJSON)

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}

			opts, err := serverOptions(cmd, cfg)
			if err != nil {
				return err
			}
			return server.New(opts).ListenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default $LIPOST_ADDR or :8080)")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Log as JSON lines")
	return cmd
}

// serverOptions wires the collaborators that are configured. Chat and
// credential lookup are switched off when their keys are missing.
func serverOptions(cmd *cobra.Command, cfg *config.Config) (server.Options, error) {
	opts := server.Options{
		Publisher: linkedin.New(linkedin.Config{APIURL: cfg.LinkedIn.APIURL, Timeout: cfg.HTTPTimeout}),
		Defaults: server.Defaults{
			AccessToken: cfg.LinkedIn.AccessToken,
			PersonID:    cfg.LinkedIn.PersonID,
		},
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}

	if err := cfg.ValidateFor("gemini"); err != nil {
		logutil.Warnf("chat disabled: %v", err)
	} else {
		enhancer, err := enhance.NewGemini(cmd.Context(), enhance.Config{APIKey: cfg.Gemini.APIKey, Model: cfg.Gemini.Model})
		if err != nil {
			return server.Options{}, err
		}
		opts.Enhancer = enhancer
	}

	if resolver, err := newResolver(cfg); err != nil {
		logutil.Warnf("credential lookup disabled: %v", err)
	} else {
		opts.Resolver = resolver
	}

	return opts, nil
}
