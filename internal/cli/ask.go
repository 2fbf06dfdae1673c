package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"researchchat/internal/conversation"
	"researchchat/internal/domain"
)

var (
	askConversation string
	askDocs         []string
	askFullContext  bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question, globally or about selected sources",
	Long: `Ask a question. Without flags a new global conversation is started.
--docs indexes the given sources first and asks about them; --conversation
continues an existing conversation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		chat := assistant.Chat()
		if askConversation != "" && len(askDocs) > 0 {
			return errors.New("--conversation and --docs cannot be combined")
		}

		if askConversation != "" {
			if err := chat.Open(ctx, askConversation); err != nil {
				return err
			}
		}
		if len(askDocs) > 0 {
			items, err := resolveItems(ctx, askDocs)
			if err != nil {
				return err
			}
			res, err := assistant.AttachItems(ctx, items)
			var assoc *conversation.AssociationError
			switch {
			case errors.As(err, &assoc):
				warn(cmd, err)
			case err != nil:
				return err
			}
			if res.Partial {
				warn(cmd, errors.New("some sources could not be indexed and were left out"))
			}
		}
		if askFullContext {
			if err := chat.SetContextMode(ctx, domain.ContextFullContext); err != nil {
				var assoc *conversation.AssociationError
				if !errors.As(err, &assoc) {
					return err
				}
				warn(cmd, err)
			}
		}

		msgs, err := assistant.Ask(ctx, strings.Join(args, " "))
		var assoc *conversation.AssociationError
		switch {
		case errors.As(err, &assoc):
			warn(cmd, err)
		case err != nil:
			return err
		}
		if jsonOutput() {
			return printJSON(cmd, struct {
				ConversationID string           `json:"conversation_id"`
				Messages       []domain.Message `json:"messages"`
			}{chat.Snapshot().ConversationID, msgs})
		}
		printMessages(cmd, msgs)
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askConversation, "conversation", "", "Continue this conversation")
	askCmd.Flags().StringSliceVar(&askDocs, "docs", nil, "Sources to index and ask about (doc:<id>, paper:<id>, repo:<id>)")
	askCmd.Flags().BoolVar(&askFullContext, "full-context", false, "Send whole documents instead of retrieved passages")
	RootCmd.AddCommand(askCmd)
}
