package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corpusloom/corpusloom/internal/conversation"
	"github.com/corpusloom/corpusloom/internal/logger"
	"github.com/corpusloom/corpusloom/internal/ollama"
)

// GenerateCmd builds the generate command
func GenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run a one-shot completion",
		RunE:  runGenerate,
	}
	cmd.Flags().String("prompt", "", "Prompt text")
	cmd.Flags().String("system", "", "System prompt")
	cmd.Flags().Bool("stream", false, "Print tokens as they arrive")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func runGenerate(cmd *cobra.Command, args []string) error {
	prompt, _ := cmd.Flags().GetString("prompt")
	system, _ := cmd.Flags().GetString("system")
	stream, _ := cmd.Flags().GetBool("stream")

	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	req := ollama.GenerateRequest{Prompt: prompt, System: system}
	out := cmd.OutOrStdout()

	if stream {
		res, err := app.client.GenerateStream(cmd.Context(), req, func(token string) error {
			_, err := fmt.Fprint(out, token)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		logger.Debug("generation complete", "model", res.Model, "eval_count", res.EvalCount)
		return nil
	}

	res, err := app.client.Generate(cmd.Context(), req)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, res.ResponseText)
	logger.Debug("generation complete", "model", res.Model, "eval_count", res.EvalCount)
	return nil
}

// ChatCmd builds the chat command
func ChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <message...>",
		Short: "Send a message in a persistent conversation",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runChat,
	}
	cmd.Flags().String("conversation", "", "Conversation id to continue; empty starts a new one")
	cmd.Flags().String("system", "", "System prompt for a new conversation")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	convID, _ := cmd.Flags().GetString("conversation")
	system, _ := cmd.Flags().GetString("system")
	message := strings.Join(args, " ")

	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	manager := conversation.NewManager(app.store, app.client)

	if convID == "" {
		conv, err := manager.New(cmd.Context(), truncate(message, 40), system)
		if err != nil {
			return err
		}
		convID = conv.ID
		logger.Info("conversation started", "id", convID)
	}

	res, err := manager.Send(cmd.Context(), convID, message)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), res.Reply.Content)
	return nil
}
