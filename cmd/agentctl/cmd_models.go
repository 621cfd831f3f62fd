package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"agentforge/chat-api/pkg/chatclient"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models and optionally select one",
	RunE:  runModels,
}

func init() {
	modelsCmd.Flags().String("select", "", "Model id to select for your account")
	modelsCmd.Flags().String("current", "", "Model currently selected, restored if selection fails")
}

func runModels(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client := newClient(cmd)
	out := cmd.OutOrStdout()

	target, _ := cmd.Flags().GetString("select")
	current, _ := cmd.Flags().GetString("current")
	selected := chatclient.NewOptimistic(current)

	if target != "" {
		err := selected.Apply(ctx, target, func(ctx context.Context, id string) error {
			_, err := client.SelectModel(ctx, id)
			return err
		})
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "selection of %q rolled back to %q\n", target, selected.Value())
			return err
		}
	}

	models, err := client.ListModels(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tNAME\tTIER\tREASONING")
	for _, m := range models {
		marker := ""
		if m.ID == selected.Value() {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", marker, m.ID, m.Name, m.Tier, m.Reasoning)
	}
	return w.Flush()
}
