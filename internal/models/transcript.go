// internal/models/transcript.go
package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// MaxTimestampSeconds is the latest accepted start/end time (24h).
const MaxTimestampSeconds = 24 * 60 * 60

// Word is one transcribed token with its time alignment (seconds).
type Word struct {
	ID    int     `json:"id"`
	Start float64 `json:"start" validate:"gte=0,lte=86400"`
	End   float64 `json:"end" validate:"gtefield=Start,lte=86400"`
	Text  string  `json:"text"`
}

// Paragraph marks a speaker turn. It carries no text of its own; the words
// falling inside [Start, End] belong to it.
type Paragraph struct {
	ID      int     `json:"id"`
	Start   float64 `json:"start" validate:"gte=0,lte=86400"`
	End     float64 `json:"end" validate:"gtefield=Start,lte=86400"`
	Speaker string  `json:"speaker"`
}

// TranscriptDocument is the interchange shape of an uploaded transcript file.
type TranscriptDocument struct {
	Words      []Word      `json:"words" validate:"dive"`
	Paragraphs []Paragraph `json:"paragraphs" validate:"dive"`
}

// Clone returns a deep copy so callers never share slices with session state.
func (d *TranscriptDocument) Clone() *TranscriptDocument {
	if d == nil {
		return nil
	}
	out := &TranscriptDocument{
		Words:      make([]Word, len(d.Words)),
		Paragraphs: make([]Paragraph, len(d.Paragraphs)),
	}
	copy(out.Words, d.Words)
	copy(out.Paragraphs, d.Paragraphs)
	return out
}

// Speakers returns the distinct paragraph speakers in order of first appearance.
func (d *TranscriptDocument) Speakers() []string {
	if d == nil {
		return nil
	}
	seen := make(map[string]bool)
	speakers := make([]string, 0)
	for _, p := range d.Paragraphs {
		if p.Speaker == "" || seen[p.Speaker] {
			continue
		}
		seen[p.Speaker] = true
		speakers = append(speakers, p.Speaker)
	}
	return speakers
}

// Duration is the largest end time found in the document.
func (d *TranscriptDocument) Duration() float64 {
	if d == nil {
		return 0
	}
	var max float64
	for _, w := range d.Words {
		if w.End > max {
			max = w.End
		}
	}
	for _, p := range d.Paragraphs {
		if p.End > max {
			max = p.End
		}
	}
	return max
}

// NodeText is the text leaf of an editable node.
type NodeText struct {
	Text  string `json:"text"`
	Words []Word `json:"words"`
}

// NodeChildren holds the leaf of an EditableNode. The editor widget emits
// children as an array of leaves; a single object is accepted as well.
type NodeChildren NodeText

// UnmarshalJSON accepts either an object or an array of leaves. Array leaves
// are merged: texts joined with a space, words concatenated.
func (c *NodeChildren) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = NodeChildren{}
		return nil
	}

	if trimmed[0] == '[' {
		var leaves []NodeText
		if err := json.Unmarshal(trimmed, &leaves); err != nil {
			return err
		}
		texts := make([]string, 0, len(leaves))
		merged := NodeChildren{Words: make([]Word, 0)}
		for _, leaf := range leaves {
			if leaf.Text != "" {
				texts = append(texts, leaf.Text)
			}
			merged.Words = append(merged.Words, leaf.Words...)
		}
		merged.Text = strings.Join(texts, " ")
		*c = merged
		return nil
	}

	var leaf NodeText
	if err := json.Unmarshal(trimmed, &leaf); err != nil {
		return err
	}
	*c = NodeChildren(leaf)
	return nil
}

// EditableNode is the editor's per-paragraph editable unit.
type EditableNode struct {
	Children        NodeChildren `json:"children"`
	Speaker         string       `json:"speaker"`
	Start           float64      `json:"start"`
	StartTimecode   string       `json:"startTimecode"`
	PreviousTimings string       `json:"previousTimings,omitempty"`
	Type            string       `json:"type"`
	Chapter         string       `json:"chapter,omitempty"`
}
