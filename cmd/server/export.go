// cmd/server/export.go
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Corphon/TranscriptEditor/internal/models"
	"github.com/Corphon/TranscriptEditor/internal/transcript"
	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Render a transcript JSON file as markdown, SRT or plain text",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringP("format", "f", transcript.FormatMarkdown, "Output format: md, srt or txt")
	exportCmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout")
	exportCmd.Flags().StringP("title", "t", "", "Title for the markdown header")
	exportCmd.Flags().BoolP("copy", "c", false, "Also copy the result to the clipboard")

	rootCmd.AddCommand(exportCmd)
}

func runExport(command *cobra.Command, args []string) error {
	format, _ := command.Flags().GetString("format")
	output, _ := command.Flags().GetString("output")
	title, _ := command.Flags().GetString("title")
	copyResult, _ := command.Flags().GetBool("copy")

	doc, err := readTranscript(args[0])
	if err != nil {
		return err
	}

	rendered, err := exportDocument(args[0], format, title, doc, time.Now())
	if err != nil {
		return err
	}

	if output != "" {
		if err := os.WriteFile(output, []byte(rendered), 0644); err != nil {
			return fmt.Errorf("写入文件失败: %w", err)
		}
		fmt.Fprintf(command.ErrOrStderr(), "✅ 已导出到 %s\n", output)
	} else {
		fmt.Fprint(command.OutOrStdout(), rendered)
	}

	if copyResult {
		if err := clipboard.WriteAll(rendered); err != nil {
			return fmt.Errorf("复制到剪贴板失败: %w", err)
		}
		fmt.Fprintln(command.ErrOrStderr(), "📋 已复制到剪贴板")
	}
	return nil
}

// exportDocument 以文件名作为来源，为导出生成元数据
func exportDocument(path, format, title string, doc *models.TranscriptDocument, now time.Time) (string, error) {
	meta := models.NewTranscriptMetadata(now)
	meta.SourceFile = filepath.Base(path)
	meta.Title = title
	if meta.Title == "" {
		meta.Title = strings.TrimSuffix(meta.SourceFile, filepath.Ext(meta.SourceFile))
	}
	meta.Speakers = doc.Speakers()
	return transcript.Render(format, meta, doc)
}
