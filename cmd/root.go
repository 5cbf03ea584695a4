// Package cmd contains the minne command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "minne",
	Short: "Minne - personal notes with retrieval-augmented chat",
	Long: `Minne stores personal markdown notes, embeds them for semantic search,
and answers questions about them through a local Ollama-compatible
inference service.

Run "minne serve" to start the HTTP API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
