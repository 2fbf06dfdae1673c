package cli

import (
	"github.com/spf13/cobra"

	"researchchat/internal/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status <ref>...",
	Short: "Show the indexing status of sources",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := resolveItems(cmd.Context(), args)
		if err != nil {
			return err
		}
		session, _, err := assistant.StartPicking(cmd.Context())
		defer func() { _ = assistant.Cancel() }()
		if err != nil {
			return err
		}
		for _, it := range items {
			if _, err := session.Toggle(it); err != nil {
				warn(cmd, err)
			}
		}
		if _, err := assistant.Embedding().Poll(cmd.Context(), session); err != nil {
			return err
		}

		out := make([]domain.EmbedStatus, 0, len(items))
		for _, it := range items {
			st, ok := assistant.Embedding().ItemStatus(it)
			if !ok {
				st = domain.EmbedStatus{DocumentID: it.ID, Status: domain.EmbedPending}
			}
			out = append(out, st)
		}
		if jsonOutput() {
			return printJSON(cmd, out)
		}
		printOutcomes(cmd, out, items)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(statusCmd)
}
