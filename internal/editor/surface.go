// internal/editor/surface.go
package editor

import (
	"context"
	"sync"

	"github.com/Corphon/TranscriptEditor/internal/models"
)

// AutoSaveContentTypeSlate asks the widget to report edits as editable nodes.
const AutoSaveContentTypeSlate = "slate"

// ButtonConfig toggles optional widget affordances.
type ButtonConfig struct {
	MusicNote   bool `json:"musicNote"`
	ReplaceText bool `json:"replaceText"`
}

// View is everything a widget needs to render one session.
type View struct {
	Document            *models.TranscriptDocument `json:"transcriptData"`
	MediaURL            string                     `json:"mediaUrl,omitempty"`
	Buttons             ButtonConfig               `json:"buttonConfig"`
	AutoSaveContentType string                     `json:"autoSaveContentType"`
}

// SaveFunc is the callback a widget invokes when the user saves.
type SaveFunc func(ctx context.Context, nodes []models.EditableNode, speakers []string) error

// Surface is the host's only dependency on the editing widget. Mount (re)renders
// a session's view; Unmount removes it.
type Surface interface {
	Mount(sessionID string, view View)
	Unmount(sessionID string)
}

// Nop ignores all calls.
type Nop struct{}

func (Nop) Mount(string, View) {}
func (Nop) Unmount(string)     {}

// Recorder is an in-memory Surface that remembers the last view per session.
type Recorder struct {
	mu     sync.Mutex
	views  map[string]View
	mounts int
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{views: make(map[string]View)}
}

// Mount records view as the session's current view.
func (r *Recorder) Mount(sessionID string, view View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views[sessionID] = view
	r.mounts++
}

// Unmount forgets the session's view.
func (r *Recorder) Unmount(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.views, sessionID)
}

// View returns the mounted view for sessionID.
func (r *Recorder) View(sessionID string) (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[sessionID]
	return v, ok
}

// Mounts counts Mount calls.
func (r *Recorder) Mounts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mounts
}
