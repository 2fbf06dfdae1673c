package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"researchchat/internal/catalog"
	"researchchat/internal/domain"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "List the folders, documents, papers and repositories you can chat with",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := assistant.Catalog().Fetch(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput() {
			return printJSON(cmd, lib)
		}
		out := cmd.OutOrStdout()
		printFolders(out, catalog.Visible(lib.Folders), 0)
		if len(lib.RootDocuments) > 0 {
			fmt.Fprintln(out, boldColor("Unfiled documents/"))
			for _, d := range lib.RootDocuments {
				fmt.Fprintf(out, "  doc:%s  %s\n", d.ID, d.Label())
			}
		}
		return nil
	},
}

func printFolders(out io.Writer, folders []domain.Folder, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, f := range folders {
		fmt.Fprintf(out, "%s%s\n", indent, boldColor(f.Name+"/"))
		for _, d := range f.Documents {
			fmt.Fprintf(out, "%s  doc:%s  %s\n", indent, d.ID, d.Label())
		}
		for _, p := range f.Papers {
			note := ""
			if !p.Retrievable() {
				note = "  " + dimColor("(no PDF)")
			}
			fmt.Fprintf(out, "%s  paper:%s  %s%s\n", indent, p.PaperID, p.Title, note)
		}
		for _, r := range f.Repos {
			fmt.Fprintf(out, "%s  repo:%s  %s\n", indent, r.RepoID, r.FullName)
		}
		printFolders(out, f.Children, depth+1)
	}
}

func init() {
	RootCmd.AddCommand(libraryCmd)
}
