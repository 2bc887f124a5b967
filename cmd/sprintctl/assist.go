package main

import (
	"context"

	"github.com/spf13/cobra"

	"sprintmail/internal/app"
	"sprintmail/internal/service/assistant"
)

// assistCmd 写作助手的命令行入口，参数与 /api/email/* 一致
func assistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assist",
		Short: "General email assistant: draft, reply, analyze, summarize, templates",
	}

	var tone, extra string
	draft := &cobra.Command{
		Use:     "draft [description]",
		Short:   "Draft an email from a description",
		Example: `  sprintctl assist draft "invite the team to Friday's retro" --tone friendly`,
		Args:    cobra.ExactArgs(1),
		RunE: withAssistant(func(ctx context.Context, a *app.App, args []string) (any, error) {
			return a.Assistant.Draft(ctx, assistant.DraftInput{Description: args[0], Tone: tone, Context: extra})
		}),
	}
	draft.Flags().StringVar(&tone, "tone", "", "professional, friendly, casual, formal, concise or urgent")
	draft.Flags().StringVar(&extra, "context", "", "additional context")

	var instructions string
	reply := &cobra.Command{
		Use:   "reply [original email]",
		Short: "Generate a reply to an email",
		Args:  cobra.ExactArgs(1),
		RunE: withAssistant(func(ctx context.Context, a *app.App, args []string) (any, error) {
			return a.Assistant.Respond(ctx, assistant.ResponseInput{OriginalEmail: args[0], Instructions: instructions, Tone: tone})
		}),
	}
	reply.Flags().StringVar(&tone, "tone", "", "reply tone")
	reply.Flags().StringVar(&instructions, "instructions", "", "what the reply should say")

	analyze := &cobra.Command{
		Use:   "analyze [email]",
		Short: "Review an email for tone, clarity and professionalism",
		Args:  cobra.ExactArgs(1),
		RunE: withAssistant(func(ctx context.Context, a *app.App, args []string) (any, error) {
			return a.Assistant.Analyze(ctx, args[0])
		}),
	}

	summarize := &cobra.Command{
		Use:   "summarize [thread]",
		Short: "Summarize an email thread",
		Args:  cobra.ExactArgs(1),
		RunE: withAssistant(func(ctx context.Context, a *app.App, args []string) (any, error) {
			return a.Assistant.Summarize(ctx, args[0])
		}),
	}

	template := &cobra.Command{
		Use:     "template [type]",
		Short:   "Generate or reuse a template",
		Example: `  sprintctl assist template follow_up --context "after the quarterly planning"`,
		Args:    cobra.ExactArgs(1),
		RunE: withAssistant(func(ctx context.Context, a *app.App, args []string) (any, error) {
			return a.Assistant.Template(ctx, assistant.TemplateInput{TemplateType: args[0], Context: extra})
		}),
	}
	template.Flags().StringVar(&extra, "context", "", "template context")

	history := &cobra.Command{
		Use:   "history",
		Short: "Show recent assistant results",
		Args:  cobra.NoArgs,
		RunE: withAssistant(func(ctx context.Context, a *app.App, _ []string) (any, error) {
			return a.Assistant.History(ctx)
		}),
	}

	cmd.AddCommand(draft, reply, analyze, summarize, template, history)
	return cmd
}

func withAssistant(fn func(ctx context.Context, a *app.App, args []string) (any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := fn(cmd.Context(), a, args)
		if err != nil {
			return err
		}
		return printJSON(out)
	}
}
