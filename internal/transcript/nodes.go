// internal/transcript/nodes.go
package transcript

import (
	"fmt"
	"math"
	"strings"

	"github.com/Corphon/TranscriptEditor/internal/models"
)

// NodeTypeTimedText is the node kind the editor widget uses for paragraphs.
const NodeTypeTimedText = "timedText"

// ToEditableNodes maps a document onto one editable node per paragraph. A
// word belongs to a paragraph when its whole span lies inside the paragraph.
// previousTimings is left empty; the widget derives it from start.
func ToEditableNodes(doc *models.TranscriptDocument) []models.EditableNode {
	if doc == nil {
		return []models.EditableNode{}
	}

	nodes := make([]models.EditableNode, 0, len(doc.Paragraphs))
	for _, p := range doc.Paragraphs {
		words := WordsInParagraph(doc.Words, p)
		nodes = append(nodes, models.EditableNode{
			Children: models.NodeChildren{
				Text:  JoinWords(words),
				Words: words,
			},
			Speaker:       p.Speaker,
			Start:         p.Start,
			StartTimecode: FormatTimecode(p.Start),
			Type:          NodeTypeTimedText,
		})
	}
	return nodes
}

// WordsInParagraph returns the words whose [start, end] falls inside p.
func WordsInParagraph(words []models.Word, p models.Paragraph) []models.Word {
	out := make([]models.Word, 0)
	for _, w := range words {
		if w.Start >= p.Start && w.End <= p.End {
			out = append(out, w)
		}
	}
	return out
}

// JoinWords joins word texts with single spaces.
func JoinWords(words []models.Word) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		parts = append(parts, w.Text)
	}
	return strings.Join(parts, " ")
}

// FormatTimecode renders seconds as HH:MM:SS, truncating fractions.
func FormatTimecode(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
