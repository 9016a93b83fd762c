package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/contact-enricher/internal/model"
)

var resolveCmd = &cobra.Command{
	Use:         "resolve",
	Short:       "Find the website for a single firm",
	Long:        "Runs website resolution for one firm given on the command line and prints the outcome. Nothing is written.",
	Annotations: map[string]string{configMode: "resolve"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		name, _ := cmd.Flags().GetString("name")
		emails, _ := cmd.Flags().GetStringArray("email")
		if name == "" && len(emails) == 0 {
			return eris.New("resolve: --name or --email is required")
		}

		resolver, err := newResolver(cfg)
		if err != nil {
			return err
		}

		firm := &model.Firm{Emails: emails}
		if name != "" {
			firm.Names = []string{name}
		}

		res, _ := resolver.Resolve(cmd.Context(), firm)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	resolveCmd.Flags().String("name", "", "company name to search for")
	resolveCmd.Flags().StringArray("email", nil, "known email address (repeatable)")
	resolveCmd.Flags().String("provider", "", "web search provider: google, jina or none")
	rootCmd.AddCommand(resolveCmd)
}
