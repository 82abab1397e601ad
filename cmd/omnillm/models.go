package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the provider's models",
	Long:  "Fetch the selected provider's model listing normalized to the uniform descriptor.",
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	adapter, err := buildAdapter()
	if err != nil {
		return err
	}

	models, err := adapter.ListModels(context.Background())
	if err != nil {
		return describeError(err)
	}

	verbose := viper.GetBool("verbose")
	for _, m := range models {
		if !verbose {
			fmt.Println(m.ID)
			continue
		}
		line := m.ID
		if m.DisplayName != "" && m.DisplayName != m.ID {
			line += "  (" + m.DisplayName + ")"
		}
		if m.ContextWindow > 0 {
			line += fmt.Sprintf("  ctx=%d", m.ContextWindow)
		}
		var caps []string
		if m.SupportsTools {
			caps = append(caps, "tools")
		}
		if m.SupportsVision {
			caps = append(caps, "vision")
		}
		if m.SupportsReasoning {
			caps = append(caps, "reasoning")
		}
		for _, c := range caps {
			line += "  +" + c
		}
		fmt.Println(line)
	}
	return nil
}
