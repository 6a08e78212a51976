// internal/session/state.go
package session

import (
	"time"

	"github.com/Corphon/TranscriptEditor/internal/models"
)

// Status is the page-level state tag.
type Status string

const (
	StatusEmpty   Status = "empty"
	StatusLoading Status = "loading"
	StatusLoaded  Status = "loaded"
	StatusError   Status = "error"
)

// State is a tagged union: Document is set only when Loaded, Message only
// when Error. Constructors below are the only way sessions build one.
type State struct {
	Status   Status
	Document *models.TranscriptDocument
	Message  string
}

func emptyState() State {
	return State{Status: StatusEmpty}
}

func loadingState() State {
	return State{Status: StatusLoading}
}

func loadedState(doc *models.TranscriptDocument) State {
	return State{Status: StatusLoaded, Document: doc}
}

func errorState(message string) State {
	return State{Status: StatusError, Message: message}
}

// Snapshot is the externally visible view of a session. The loading,
// success and error fields are derived from Status and can never disagree.
type Snapshot struct {
	ID             string                     `json:"id"`
	Status         Status                     `json:"status"`
	Loading        bool                       `json:"loading"`
	Success        bool                       `json:"success"`
	Error          *string                    `json:"error"`
	Document       *models.TranscriptDocument `json:"document"`
	TranscriptFile string                     `json:"transcript_file,omitempty"`
	AudioFile      string                     `json:"audio_file,omitempty"`
	AudioURL       string                     `json:"audio_url,omitempty"`
	Metadata       models.TranscriptMetadata  `json:"metadata"`
	Generation     uint64                     `json:"generation"`
	CreatedAt      time.Time                  `json:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"`
}

func (st State) apply(snap *Snapshot) {
	snap.Status = st.Status
	snap.Loading = st.Status == StatusLoading
	snap.Success = st.Status == StatusLoaded
	if st.Status == StatusError {
		msg := st.Message
		snap.Error = &msg
	}
	if st.Status == StatusLoaded {
		snap.Document = st.Document.Clone()
	}
}
