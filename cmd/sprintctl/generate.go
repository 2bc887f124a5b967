package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func generateCmd() *cobra.Command {
	var vars map[string]string
	cmd := &cobra.Command{
		Use:     "generate [request]",
		Short:   "Generate a sprint email from a natural-language request",
		Example: `  sprintctl generate "weekly update for the backend team" --context sprint_name="Sprint 24"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.Generation.Generate(cmd.Context(), args[0], vars)
			if err := printJSON(res); err != nil {
				return err
			}
			if !res.Success {
				return errors.New(res.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringToStringVarP(&vars, "context", "c", nil, "placeholder values, key=value")
	return cmd
}
