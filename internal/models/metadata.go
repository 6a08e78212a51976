// internal/models/metadata.go
package models

import (
	"time"
)

// TranscriptMetadata 会话级描述信息，不从转录文件解析
type TranscriptMetadata struct {
	Title        string    `json:"title"`
	Tags         []string  `json:"tags"`
	Date         time.Time `json:"date"`
	Speakers     []string  `json:"speakers"`
	SourceFile   string    `json:"source_file"`
	Media        string    `json:"media"`
	TranscriptBy string    `json:"transcript_by"`
}

// NewTranscriptMetadata returns the initial metadata of a freshly opened session.
func NewTranscriptMetadata(now time.Time) TranscriptMetadata {
	return TranscriptMetadata{
		Tags:     []string{},
		Date:     now,
		Speakers: []string{},
	}
}

// Clone 返回元数据副本
func (m TranscriptMetadata) Clone() TranscriptMetadata {
	out := m
	out.Tags = append([]string{}, m.Tags...)
	out.Speakers = append([]string{}, m.Speakers...)
	return out
}

// MetadataUpdate 可由客户端修改的元数据字段
type MetadataUpdate struct {
	Title        *string  `json:"title,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	TranscriptBy *string  `json:"transcript_by,omitempty"`
}

// SavePayload 保存时汇总的数据
type SavePayload struct {
	TranscriptSlate []EditableNode     `json:"transcriptSlate"`
	TranscriptURL   string             `json:"transcriptUrl"`
	Metadata        TranscriptMetadata `json:"metadata"`
	SavedAt         time.Time          `json:"saved_at"`
}

// SaveRequest 编辑器保存回调的请求体
type SaveRequest struct {
	Nodes    []EditableNode `json:"nodes"`
	Speakers []string       `json:"speakers"`
}
