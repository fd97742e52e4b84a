package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/blacktop/lipost/internal/config"
	"github.com/spf13/cobra"
)

func newWhoamiCommand() *cobra.Command {
	var (
		userID  string
		asJSON  bool
		showTok bool
	)

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the LinkedIn member behind a Clerk user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(userID) == "" {
				return errors.New("--user is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			resolver, err := newResolver(cfg)
			if err != nil {
				return err
			}
			creds, err := resolver.Resolve(cmd.Context(), userID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(json.RawMessage(creds.UserInfo.Raw))
			}

			fmt.Fprintf(out, "subject: %s\n", creds.Subject)
			if creds.UserInfo.Name != "" {
				fmt.Fprintf(out, "name:    %s\n", creds.UserInfo.Name)
			}
			if creds.UserInfo.Email != "" {
				fmt.Fprintf(out, "email:   %s\n", creds.UserInfo.Email)
			}
			if showTok {
				fmt.Fprintf(out, "token:   %s\n", creds.AccessToken)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "Clerk user id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw LinkedIn profile")
	cmd.Flags().BoolVar(&showTok, "show-token", false, "Also print the LinkedIn access token")
	return cmd
}
