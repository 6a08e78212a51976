// cmd/server/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "transcript-editor",
	Short:         "Browser-based editor for timed speech transcripts",
	Long:          "Serves the transcript editor page and offers offline validate/export helpers for transcript JSON files.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
