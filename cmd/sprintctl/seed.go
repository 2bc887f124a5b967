package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sprintmail/internal/seed"
)

func seedCmd() *cobra.Command {
	var analyze bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert the example training emails, skipping ones already present",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := seed.Run(cmd.Context(), a.Learning, a.Logger)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d training emails, skipped %d duplicates\n", len(rep.Inserted), rep.Skipped)

			if !analyze {
				return nil
			}
			outcomes, err := a.Learning.AnalyzeAll(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(outcomes)
		},
	}
	cmd.Flags().BoolVar(&analyze, "analyze", false, "analyze pending emails right after seeding")
	return cmd
}
