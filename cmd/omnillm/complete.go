package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/omnillm/omnillm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var completeCmd = &cobra.Command{
	Use:   "complete <prompt>",
	Short: "Send a completion request",
	Long:  "Send a single-turn completion to the selected provider and print the response text.",
	Args:  cobra.ExactArgs(1),
	RunE:  runComplete,
}

func init() {
	completeCmd.Flags().StringP("model", "m", "", "Model id (required)")
	completeCmd.Flags().String("system", "", "System prompt")
	completeCmd.Flags().Bool("stream", false, "Stream the response")
	completeCmd.Flags().Int("max-tokens", 0, "Maximum output tokens")
	completeCmd.Flags().Float64("temperature", -1, "Sampling temperature")
	_ = completeCmd.MarkFlagRequired("model")

	rootCmd.AddCommand(completeCmd)
}

func runComplete(cmd *cobra.Command, args []string) error {
	prompt := args[0]
	model, _ := cmd.Flags().GetString("model")
	system, _ := cmd.Flags().GetString("system")
	stream, _ := cmd.Flags().GetBool("stream")
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")
	temperature, _ := cmd.Flags().GetFloat64("temperature")
	verbose := viper.GetBool("verbose")

	adapter, err := buildAdapter()
	if err != nil {
		return err
	}

	req := omnillm.Request{Model: model}
	if system != "" {
		req.Messages = append(req.Messages, omnillm.SystemMessage(system))
	}
	req.Messages = append(req.Messages, omnillm.UserMessage(prompt))
	if maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}
	if temperature >= 0 {
		req.Temperature = &temperature
	}

	ctx := context.Background()

	if stream {
		return streamComplete(ctx, adapter, req, verbose)
	}

	resp, err := adapter.Complete(ctx, req)
	if err != nil {
		return describeError(err)
	}

	fmt.Println(resp.Text())
	if verbose {
		printUsage(resp.Usage, resp.FinishReason)
	}
	return nil
}

func streamComplete(ctx context.Context, adapter omnillm.ProviderAdapter, req omnillm.Request, verbose bool) error {
	events, err := adapter.Stream(ctx, req)
	if err != nil {
		return describeError(err)
	}

	for evt := range events {
		switch evt.Type {
		case omnillm.TextDelta:
			fmt.Print(evt.Delta)
		case omnillm.StreamFinish:
			fmt.Println()
			if verbose && evt.Usage != nil && evt.FinishReason != nil {
				printUsage(*evt.Usage, *evt.FinishReason)
			}
		case omnillm.StreamError:
			fmt.Println()
			return describeError(evt.Error)
		}
	}
	return nil
}

func printUsage(usage omnillm.Usage, fr omnillm.FinishReason) {
	fmt.Fprintf(os.Stderr, "[usage] input=%d output=%d total=%d finish=%s\n",
		usage.InputTokens, usage.OutputTokens, usage.TotalTokens, fr.Reason)
	if usage.ReasoningTokens != nil {
		fmt.Fprintf(os.Stderr, "[usage] reasoning=%d\n", *usage.ReasoningTokens)
	}
}

// describeError annotates classified errors with their code and whether a
// retry could help.
func describeError(err error) error {
	var classified omnillm.Classified
	if errors.As(err, &classified) {
		retry := "not retryable"
		if classified.Retryable() {
			retry = "retryable"
		}
		return fmt.Errorf("%s (%s, %s)", err.Error(), classified.Code(), retry)
	}
	return err
}
