package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/throttlegate/throttlegate/internal/core/store"
	"github.com/throttlegate/throttlegate/internal/output"
)

var (
	tokensListAll      bool
	tokensListIdentity string
	tokensListPrefix   string
	tokensSetNote      string
)

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Manage the token directory in the store",
	Long: `Manage token to identity mappings stored in the database. These are
served when directory.source is "store"; a running server picks up changes
on SIGHUP.`,
}

var tokensListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		query := store.TokenQuery{
			All:      tokensListAll,
			Identity: strings.TrimSpace(tokensListIdentity),
			Prefix:   strings.TrimSpace(tokensListPrefix),
		}
		if !query.All && query.Identity == "" && query.Prefix == "" {
			query.All = true
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		entries, err := db.ListTokens(cmd.Context(), query)
		if err != nil {
			return err
		}
		return writeReport(cmd, tokensReport(entries))
	},
}

var tokensSetCmd = &cobra.Command{
	Use:   "set <token> <identity>",
	Short: "Map a token to an identity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		if err := db.UpsertToken(cmd.Context(), args[0], args[1], tokensSetNote); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Token mapped to %s\n", strings.TrimSpace(args[1]))
		return err
	},
}

var tokensDeleteCmd = &cobra.Command{
	Use:   "delete <token>",
	Short: "Remove a token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		removed, err := db.DeleteToken(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("token not found")
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "Token removed")
		return err
	},
}

func tokensReport(entries []store.TokenEntry) *output.Report {
	report := &output.Report{
		Title:   "Tokens",
		Columns: []string{"token", "identity", "note", "updated"},
		Empty:   "(no tokens stored)",
	}
	type row struct {
		Token     string    `json:"token"`
		Identity  string    `json:"identity"`
		Note      string    `json:"note,omitempty"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	data := make([]row, 0, len(entries))
	for _, e := range entries {
		report.AddRow(e.Token, e.Identity, e.Note, formatTime(e.UpdatedAt))
		data = append(data, row{Token: e.Token, Identity: e.Identity, Note: e.Note, UpdatedAt: e.UpdatedAt})
	}
	report.Data = data
	report.Summary = fmt.Sprintf("%d tokens", len(entries))
	return report
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(time.RFC3339)
}

func init() {
	tokensListCmd.Flags().BoolVar(&tokensListAll, "all", false, "List every token")
	tokensListCmd.Flags().StringVar(&tokensListIdentity, "identity", "", "List tokens of one identity")
	tokensListCmd.Flags().StringVar(&tokensListPrefix, "prefix", "", "List tokens with matching prefix")
	addOutputFlags(tokensListCmd)

	tokensSetCmd.Flags().StringVar(&tokensSetNote, "note", "", "Free-form note stored with the token")

	tokensCmd.AddCommand(tokensListCmd, tokensSetCmd, tokensDeleteCmd)
	rootCmd.AddCommand(tokensCmd)
}
