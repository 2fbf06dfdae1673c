package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"researchchat/internal/domain"
)

var (
	okColor   = color.New(color.FgGreen).SprintFunc()
	warnColor = color.New(color.FgYellow).SprintFunc()
	failColor = color.New(color.FgRed).SprintFunc()
	dimColor  = color.New(color.Faint).SprintFunc()
	boldColor = color.New(color.Bold).SprintFunc()
)

func jsonOutput() bool { return formatFlag == "json" }

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func warn(cmd *cobra.Command, err error) {
	fmt.Fprintln(cmd.ErrOrStderr(), warnColor("warning: "+err.Error()))
}

func statusText(st domain.EmbedStatus) string {
	switch st.Status {
	case domain.EmbedCompleted:
		return okColor(fmt.Sprintf("completed (%d chunks)", st.ChunkCount))
	case domain.EmbedFailed:
		return failColor("failed: " + st.ErrorMessage)
	case domain.EmbedProcessing:
		return warnColor("processing")
	}
	return dimColor(string(st.Status))
}

func printMessages(cmd *cobra.Command, msgs []domain.Message) {
	out := cmd.OutOrStdout()
	for _, m := range msgs {
		if m.Role == domain.RoleUser {
			fmt.Fprintf(out, "%s %s\n", boldColor("you:"), m.Content)
			continue
		}
		fmt.Fprintf(out, "%s %s\n", boldColor("assistant:"), m.Content)
		for i, c := range m.Citations {
			line := fmt.Sprintf("  [%d] %s", i+1, c.Title)
			if c.URL != "" {
				line += " " + c.URL
			}
			fmt.Fprintln(out, dimColor(line))
		}
	}
}

func shorten(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
