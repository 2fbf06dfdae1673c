package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"researchchat/internal/domain"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List conversations, most recent first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := assistant.Conversations().Refresh(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput() {
			return printJSON(cmd, list)
		}
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No conversations yet.")
			return nil
		}
		for _, c := range list {
			title := c.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Fprintf(out, "%s  %-9s %s  %s\n",
				c.ID, c.Mode, boldColor(shorten(title, 50)), dimColor(c.UpdatedAt.Format("2006-01-02 15:04")))
			if c.LastMessagePreview != "" {
				fmt.Fprintf(out, "    %s\n", dimColor(shorten(c.LastMessagePreview, 80)))
			}
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Print a conversation's transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := assistant.Chat().Open(cmd.Context(), args[0]); err != nil {
			return err
		}
		snap := assistant.Chat().Snapshot()
		if jsonOutput() {
			return printJSON(cmd, struct {
				ID          string           `json:"id"`
				Title       string           `json:"title,omitempty"`
				State       string           `json:"state"`
				ContextMode string           `json:"context_mode"`
				DocumentIDs []string         `json:"document_ids"`
				Messages    []domain.Message `json:"messages"`
			}{snap.ConversationID, snap.Title, snap.State.String(), string(snap.ContextMode), snap.Attached, snap.Messages})
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s  %s\n", boldColor(snap.Title), dimColor(snap.State.String()))
		if len(snap.Attached) > 0 {
			fmt.Fprintf(out, "%s %v\n", dimColor("documents:"), snap.Attached)
		}
		printMessages(cmd, snap.Messages)
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <conversation-id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := assistant.Chat().Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

func init() {
	RootCmd.AddCommand(conversationsCmd)
	RootCmd.AddCommand(showCmd)
	RootCmd.AddCommand(rmCmd)
}
