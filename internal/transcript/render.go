// internal/transcript/render.go
package transcript

import (
	"fmt"
	"strings"
	"time"

	"github.com/Corphon/TranscriptEditor/internal/models"
)

// Export formats understood by Render.
const (
	FormatMarkdown = "md"
	FormatSRT      = "srt"
	FormatText     = "txt"
)

// Render dispatches to the renderer for format.
func Render(format string, meta models.TranscriptMetadata, doc *models.TranscriptDocument) (string, error) {
	switch strings.ToLower(format) {
	case FormatMarkdown, "markdown":
		return RenderMarkdown(meta, doc), nil
	case FormatSRT:
		return RenderSRT(doc), nil
	case FormatText, "text":
		return RenderText(doc), nil
	default:
		return "", fmt.Errorf("unsupported export format %q", format)
	}
}

// FileInfo returns the file extension and content type for an export format.
func FileInfo(format string) (ext, contentType string, ok bool) {
	switch strings.ToLower(format) {
	case FormatMarkdown, "markdown":
		return ".md", "text/markdown; charset=utf-8", true
	case FormatSRT:
		return ".srt", "application/x-subrip; charset=utf-8", true
	case FormatText, "text":
		return ".txt", "text/plain; charset=utf-8", true
	default:
		return "", "", false
	}
}

// RenderMarkdown writes a header from meta followed by one timed line per paragraph.
func RenderMarkdown(meta models.TranscriptMetadata, doc *models.TranscriptDocument) string {
	var b strings.Builder
	if meta.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", meta.Title)
	} else {
		b.WriteString("# Transcript\n\n")
	}

	speakers := meta.Speakers
	if len(speakers) == 0 {
		speakers = doc.Speakers()
	}
	if len(speakers) > 0 {
		fmt.Fprintf(&b, "- Speakers: %s\n", strings.Join(speakers, ", "))
	}
	if len(meta.Tags) > 0 {
		fmt.Fprintf(&b, "- Tags: %s\n", strings.Join(meta.Tags, ", "))
	}
	if meta.SourceFile != "" {
		fmt.Fprintf(&b, "- Source: `%s`\n", meta.SourceFile)
	}
	if meta.Media != "" {
		fmt.Fprintf(&b, "- Media: `%s`\n", meta.Media)
	}
	if meta.TranscriptBy != "" {
		fmt.Fprintf(&b, "- Transcript by: %s\n", meta.TranscriptBy)
	}
	if !meta.Date.IsZero() {
		fmt.Fprintf(&b, "- Date: %s\n", meta.Date.Format("2006-01-02"))
	}
	if d := doc.Duration(); d > 0 {
		fmt.Fprintf(&b, "- Duration: %s\n", time.Duration(d*float64(time.Second)).Truncate(time.Second))
	}
	b.WriteString("\n---\n\n")

	for _, node := range ToEditableNodes(doc) {
		fmt.Fprintf(&b, "[%s] ", node.StartTimecode)
		if node.Speaker != "" {
			fmt.Fprintf(&b, "**%s**: ", node.Speaker)
		}
		fmt.Fprintf(&b, "%s\n\n", strings.TrimSpace(node.Children.Text))
	}
	return b.String()
}

// RenderSRT emits one subtitle cue per paragraph.
func RenderSRT(doc *models.TranscriptDocument) string {
	var b strings.Builder
	if doc == nil {
		return ""
	}
	for i, p := range doc.Paragraphs {
		text := JoinWords(WordsInParagraph(doc.Words, p))
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", srtTimestamp(p.Start), srtTimestamp(p.End))
		if p.Speaker != "" {
			fmt.Fprintf(&b, "%s: %s\n\n", p.Speaker, text)
		} else {
			fmt.Fprintf(&b, "%s\n\n", text)
		}
	}
	return b.String()
}

// RenderText emits "Speaker: text" lines, one per paragraph.
func RenderText(doc *models.TranscriptDocument) string {
	var b strings.Builder
	for _, node := range ToEditableNodes(doc) {
		if node.Speaker != "" {
			fmt.Fprintf(&b, "%s: ", node.Speaker)
		}
		b.WriteString(node.Children.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

// srtTimestamp formats seconds as HH:MM:SS,mmm.
func srtTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(seconds*1000 + 0.5)
	d := time.Duration(ms) * time.Millisecond
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	millis := ms % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}
