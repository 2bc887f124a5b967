package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"sprintmail/pkg/mq"
	"sprintmail/pkg/outbox"
)

func outboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and replay outbox events",
	}
	cmd.AddCommand(outboxReplayCmd())
	return cmd
}

func outboxReplayCmd() *cobra.Command {
	var (
		id     int64
		failed bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Republish one event or every failed event",
		Example: `  sprintctl outbox replay --id 17
  sprintctl outbox replay --failed --limit 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (id == 0) == !failed {
				return errors.New("specify exactly one of --id or --failed")
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Outbox == nil {
				return errors.New("outbox replay requires postgres storage")
			}

			publisher, err := mq.NewPublisher(a.Config.MQ.URL)
			if err != nil {
				return fmt.Errorf("init MQ publisher: %w", err)
			}
			defer publisher.Close()

			replay := outbox.NewReplayService(a.Outbox, publisher, a.Logger)
			if failed {
				n, err := replay.ReplayFailedEvents(cmd.Context(), limit)
				if err != nil {
					return err
				}
				fmt.Printf("Replayed %d failed events\n", n)
				return nil
			}
			if err := replay.ReplayEvent(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("Replayed event %d\n", id)
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "outbox event id")
	cmd.Flags().BoolVar(&failed, "failed", false, "replay every failed event")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum events with --failed")
	return cmd
}
