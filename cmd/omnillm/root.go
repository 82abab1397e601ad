package main

import (
	"fmt"
	"os"

	"github.com/omnillm/omnillm"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "omnillm",
	Short: "Unified LLM provider client",
	Long:  "omnillm talks to OpenAI, Anthropic, Mistral, and OpenAI-compatible servers through one normalized request and response shape.",
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("provider", "p", "openai", "Provider: openai, anthropic, mistral, or compat")
	rootCmd.PersistentFlags().String("base-url", "", "Base URL override (required for compat)")
	rootCmd.PersistentFlags().String("api-key", "", "API key (defaults to the provider's env var)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().Bool("debug", false, "Debug output")

	_ = viper.BindPFlag("provider", rootCmd.PersistentFlags().Lookup("provider"))
	_ = viper.BindPFlag("base_url", rootCmd.PersistentFlags().Lookup("base-url"))
	_ = viper.BindPFlag("api_key", rootCmd.PersistentFlags().Lookup("api-key"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func initConfig() {
	viper.SetEnvPrefix("OMNILLM")
	viper.AutomaticEnv()
}

func newLogger() zerolog.Logger {
	if !viper.GetBool("debug") {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(zerolog.DebugLevel).With().Timestamp().Logger()
}

// buildAdapter constructs the adapter selected by --provider.
func buildAdapter() (omnillm.ProviderAdapter, error) {
	provider := viper.GetString("provider")
	baseURL := viper.GetString("base_url")
	apiKey := viper.GetString("api_key")
	logger := newLogger()

	switch provider {
	case "openai":
		var opts []omnillm.OpenAIAdapterOption
		if baseURL != "" {
			opts = append(opts, omnillm.WithOpenAIBaseURL(baseURL))
		}
		opts = append(opts, omnillm.WithOpenAILogger(logger))
		return omnillm.NewOpenAIAdapter(apiKey, opts...)
	case "anthropic":
		var opts []omnillm.AnthropicAdapterOption
		if baseURL != "" {
			opts = append(opts, omnillm.WithAnthropicBaseURL(baseURL))
		}
		opts = append(opts, omnillm.WithAnthropicLogger(logger))
		return omnillm.NewAnthropicAdapter(apiKey, opts...)
	case "mistral":
		var opts []omnillm.MistralAdapterOption
		if baseURL != "" {
			opts = append(opts, omnillm.WithMistralBaseURL(baseURL))
		}
		opts = append(opts, omnillm.WithMistralLogger(logger))
		return omnillm.NewMistralAdapter(apiKey, opts...)
	case "compat":
		return omnillm.NewOpenAICompatAdapter("compat", baseURL, apiKey,
			omnillm.WithOpenAICompatLogger(logger))
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}
