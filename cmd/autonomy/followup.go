package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alekspetrov/autonomy/internal/followup"
)

func toolList() string {
	return strings.Join(followup.DefaultRegistry().Names(), ", ")
}

func newFollowUpCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "followup <tool> [result.json]",
		Short: "Suggest a follow-up task from a tool result",
		Long:  `Run the follow-up generator for a tool over its JSON result and print the suggested next task. Reads the result from stdin when no file is given.`,
		Example: `  autonomy followup sentiment result.json
  echo '{"query":"database pool","matches":3}' | autonomy followup code_search`,
		Args: func(cmd *cobra.Command, args []string) error {
			if list {
				return nil
			}
			return cobra.RangeArgs(1, 2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := followup.DefaultRegistry()
			if list {
				for _, name := range registry.Names() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			path := ""
			if len(args) == 2 {
				path = args[1]
			}
			raw, err := readResult(path, cmd.InOrStdin())
			if err != nil {
				return err
			}

			content, err := registry.Generate(args[0], raw)
			if err != nil {
				return err
			}
			if content == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "No follow-up suggested; scheduling would use the default content.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), content)
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List tools with a follow-up generator")
	return cmd
}
