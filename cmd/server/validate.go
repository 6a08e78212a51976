// cmd/server/validate.go
package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Corphon/TranscriptEditor/internal/models"
	"github.com/Corphon/TranscriptEditor/internal/session"
	"github.com/Corphon/TranscriptEditor/internal/transcript"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Check that a transcript JSON file can be opened in the editor",
	Args:  cobra.ExactArgs(1),
	RunE: func(command *cobra.Command, args []string) error {
		doc, err := readTranscript(args[0])
		if err != nil {
			return err
		}
		printSummary(command.OutOrStdout(), args[0], doc)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// readTranscript 通过与页面相同的读取器读取并解码转录文件
func readTranscript(path string) (*models.TranscriptDocument, error) {
	data, err := session.TextReader{}.Read(context.Background(), session.FileSource(path))
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	result := transcript.Decode(data)
	if !result.OK() {
		return nil, fmt.Errorf("%s: %w", path, result.Err)
	}
	return result.Document, nil
}

func printSummary(w io.Writer, path string, doc *models.TranscriptDocument) {
	fmt.Fprintf(w, "✅ %s\n", path)
	fmt.Fprintf(w, "   words:      %d\n", len(doc.Words))
	fmt.Fprintf(w, "   paragraphs: %d\n", len(doc.Paragraphs))
	fmt.Fprintf(w, "   speakers:   %d %v\n", len(doc.Speakers()), doc.Speakers())
	fmt.Fprintf(w, "   duration:   %.2fs (%s)\n", doc.Duration(), transcript.FormatTimecode(doc.Duration()))
}
