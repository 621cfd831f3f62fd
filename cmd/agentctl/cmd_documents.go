package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Inspect documents created by the assistant",
}

var documentsDiffCmd = &cobra.Command{
	Use:   "diff <document-id>",
	Short: "Show the changes a version made to its predecessor",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsDiff,
}

func init() {
	documentsCmd.AddCommand(documentsDiffCmd)

	documentsDiffCmd.Flags().Int("version", 2, "Version to compare with the one before it")
}

func runDocumentsDiff(cmd *cobra.Command, args []string) error {
	version, _ := cmd.Flags().GetInt("version")
	diff, err := newClient(cmd).DocumentDiff(cmd.Context(), args[0], version)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if diff.Unified == "" {
		fmt.Fprintf(out, "v%d and v%d are identical\n", diff.FromVersion, diff.ToVersion)
		return nil
	}
	fmt.Fprint(out, diff.Unified)
	return nil
}
