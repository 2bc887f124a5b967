package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func analyzeCmd() *cobra.Command {
	var (
		id  int64
		all bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze training emails into pattern vectors and templates",
		Example: `  sprintctl analyze --id 42
  sprintctl analyze --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (id == 0) == !all {
				return errors.New("specify exactly one of --id or --all")
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if all {
				outcomes, err := a.Learning.AnalyzeAll(cmd.Context())
				if err != nil {
					return err
				}
				failed := 0
				for _, o := range outcomes {
					if o.Status != "success" {
						failed++
					}
				}
				fmt.Printf("Analyzed %d training emails (%d failed)\n", len(outcomes), failed)
				return printJSON(outcomes)
			}

			res, err := a.Learning.Analyze(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "training email id")
	cmd.Flags().BoolVar(&all, "all", false, "analyze every unprocessed, approved training email")
	return cmd
}
