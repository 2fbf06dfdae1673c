package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"researchchat/internal/catalog"
	"researchchat/internal/domain"
	"researchchat/internal/embedding"
)

var embedCmd = &cobra.Command{
	Use:   "embed <ref>...",
	Short: "Index documents, papers and repositories for document chat",
	Long: `Index the given sources. A ref is an id, optionally prefixed with its
kind: doc:<id>, paper:<id> or repo:<id>. Papers are downloaded and
repositories ingested by the server as part of indexing.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := resolveItems(cmd.Context(), args)
		if err != nil {
			return err
		}
		res, err := assistant.IndexItems(cmd.Context(), items)
		var agg *embedding.AggregateSubmitError
		switch {
		case errors.As(err, &agg):
			if jsonOutput() {
				_ = printJSON(cmd, embedding.Result{Outcomes: agg.Outcomes, Failed: agg.Outcomes})
			} else {
				printOutcomes(cmd, agg.Outcomes, items)
			}
			return err
		case err != nil:
			return err
		}
		if jsonOutput() {
			return printJSON(cmd, res)
		}
		printOutcomes(cmd, res.Outcomes, items)
		if res.Partial {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d of %d item(s) ready\n", warnColor("partial:"), len(res.Ready), len(res.Outcomes))
		}
		return nil
	},
}

// resolveItems maps refs to library items. Unknown refs are an error.
func resolveItems(ctx context.Context, refs []string) ([]domain.SelectionItem, error) {
	lib, err := assistant.Catalog().Fetch(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]domain.SelectionItem, 0, len(refs))
	for _, ref := range refs {
		it, ok := catalog.Item(lib, ref)
		if !ok {
			return nil, fmt.Errorf("%q is not in the library", ref)
		}
		items = append(items, it)
	}
	return items, nil
}

func printOutcomes(cmd *cobra.Command, outcomes []domain.EmbedStatus, items []domain.SelectionItem) {
	for _, st := range outcomes {
		fmt.Fprintf(cmd.OutOrStdout(), "%-40s %s\n", shorten(outcomeLabel(st.DocumentID, items), 40), statusText(st))
	}
}

func outcomeLabel(id string, items []domain.SelectionItem) string {
	for _, it := range items {
		if it.ID == id || assistant.Embedding().DocumentID(it) == id {
			return it.Label
		}
	}
	if d, ok := assistant.Catalog().Document(id); ok {
		return d.Label()
	}
	return id
}

func init() {
	RootCmd.AddCommand(embedCmd)
}
