// internal/session/session.go
package session

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/Corphon/TranscriptEditor/internal/editor"
	apperrors "github.com/Corphon/TranscriptEditor/internal/errors"
	"github.com/Corphon/TranscriptEditor/internal/media"
	"github.com/Corphon/TranscriptEditor/internal/models"
	"github.com/Corphon/TranscriptEditor/internal/sink"
	"github.com/Corphon/TranscriptEditor/internal/transcript"
	"github.com/Corphon/TranscriptEditor/internal/utils"
)

var (
	// ErrNoTranscript is returned by HandleSave and Nodes before a transcript has loaded.
	ErrNoTranscript = apperrors.NewPreconditionError("no transcript loaded", nil)
	// ErrSuperseded is returned to a transcript selection overtaken by a newer one.
	ErrSuperseded = apperrors.NewConflictError("transcript selection superseded by a newer one", nil)
	// ErrClosed is returned once the session has been torn down.
	ErrClosed = apperrors.NewNotFoundError("session closed", nil)
)

// ReadFailedMessage prefixes read errors surfaced to the user.
const ReadFailedMessage = "Failed to read file"

// MediaStore holds uploaded audio behind revocable handles.
type MediaStore interface {
	Put(name string, r io.Reader) (media.Handle, error)
	Revoke(token string) error
}

// Event is pushed to subscribers whenever a session changes.
type Event struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id"`
	Data      interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventState  = "state"
	EventSaved  = "saved"
	EventClosed = "closed"
)

// Publisher delivers session events. Implementations must not block or call
// back into the session.
type Publisher interface {
	Publish(sessionID string, event Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, Event) {}

// Deps are the collaborators shared by every session of a Manager.
type Deps struct {
	Reader    Reader
	Media     MediaStore
	Surface   editor.Surface
	Sink      sink.Sink
	Publisher Publisher
	Metrics   *utils.APIMetrics
	Logger    *utils.Logger
	Buttons   func() editor.ButtonConfig
	Now       func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Reader == nil {
		d.Reader = TextReader{}
	}
	if d.Surface == nil {
		d.Surface = editor.Nop{}
	}
	if d.Logger == nil {
		d.Logger = utils.GetLogger()
	}
	if d.Sink == nil {
		d.Sink = sink.NewLogSink(d.Logger)
	}
	if d.Publisher == nil {
		d.Publisher = nopPublisher{}
	}
	if d.Metrics == nil {
		d.Metrics = utils.NewAPIMetrics()
	}
	if d.Buttons == nil {
		d.Buttons = func() editor.ButtonConfig { return editor.ButtonConfig{} }
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Session owns the state of one open editor page.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu             sync.Mutex
	state          State
	generation     uint64
	transcriptName string
	audio          *media.Handle
	metadata       models.TranscriptMetadata
	updatedAt      time.Time
	lastActive     time.Time
	closed         bool

	deps Deps
}

func newSession(id string, deps Deps) *Session {
	now := deps.Now()
	return &Session{
		ID:         id,
		CreatedAt:  now,
		state:      emptyState(),
		metadata:   models.NewTranscriptMetadata(now),
		updatedAt:  now,
		lastActive: now,
		deps:       deps,
	}
}

// Snapshot returns the current visible state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:             s.ID,
		TranscriptFile: s.transcriptName,
		Metadata:       s.metadata.Clone(),
		Generation:     s.generation,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.updatedAt,
	}
	s.state.apply(&snap)
	if s.audio != nil {
		snap.AudioFile = s.audio.Name
		snap.AudioURL = s.audio.URL
	}
	return snap
}

// changedLocked stamps the session and pushes the new snapshot to subscribers.
func (s *Session) changedLocked() Snapshot {
	s.updatedAt = s.deps.Now()
	s.lastActive = s.updatedAt
	snap := s.snapshotLocked()
	s.deps.Publisher.Publish(s.ID, Event{Type: EventState, SessionID: s.ID, Data: snap})
	return snap
}

// mountLocked renders the loaded document, with the current audio, on the surface.
func (s *Session) mountLocked() {
	if s.state.Status != StatusLoaded {
		return
	}
	view := editor.View{
		Document:            s.state.Document.Clone(),
		Buttons:             s.deps.Buttons(),
		AutoSaveContentType: editor.AutoSaveContentTypeSlate,
	}
	if s.audio != nil {
		view.MediaURL = s.audio.URL
	}
	s.deps.Surface.Mount(s.ID, view)
}

// SelectTranscriptFile reads and decodes src, replacing any previous
// document. A nil src is a no-op. When a newer selection starts before this
// one completes, this result is dropped and ErrSuperseded is returned.
func (s *Session) SelectTranscriptFile(ctx context.Context, src Source) (Snapshot, error) {
	if src == nil {
		return s.Snapshot(), nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	s.generation++
	token := s.generation
	s.transcriptName = src.Name()
	s.state = loadingState()
	s.deps.Surface.Unmount(s.ID)
	s.changedLocked()
	s.mu.Unlock()

	started := s.deps.Now()
	data, readErr := s.deps.Reader.Read(ctx, src)

	var result transcript.Result
	if readErr != nil {
		result = transcript.Result{Err: apperrors.WrapError(readErr, ReadFailedMessage, apperrors.ErrorTypeError)}
	} else {
		result = transcript.Decode(data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := s.deps.Now().Sub(started)
	if s.closed || token != s.generation {
		s.deps.Metrics.RecordTranscriptLoad("stale", len(data), elapsed)
		s.deps.Logger.Debug("Discarding superseded transcript read", map[string]interface{}{
			"session": s.ID,
			"token":   token,
			"current": s.generation,
		})
		if s.closed {
			return Snapshot{}, ErrClosed
		}
		return s.snapshotLocked(), ErrSuperseded
	}

	if !result.OK() {
		s.state = errorState(result.Err.Error())
		s.deps.Metrics.RecordTranscriptLoad("error", len(data), elapsed)
		s.deps.Logger.Warn("Transcript file rejected", map[string]interface{}{
			"session": s.ID,
			"file":    src.Name(),
			"error":   result.Err,
		})
		return s.changedLocked(), result.Err
	}

	s.state = loadedState(result.Document)
	s.deps.Metrics.RecordTranscriptLoad("loaded", len(data), elapsed)
	s.deps.Logger.Info("Transcript loaded", map[string]interface{}{
		"session":    s.ID,
		"file":       src.Name(),
		"words":      len(result.Document.Words),
		"paragraphs": len(result.Document.Paragraphs),
	})
	s.mountLocked()
	return s.changedLocked(), nil
}

// SelectAudioFile stores src as the session's playback media, revoking the
// previous one. A nil src is a no-op. No format validation is done.
func (s *Session) SelectAudioFile(ctx context.Context, src Source) (Snapshot, error) {
	if src == nil {
		return s.Snapshot(), nil
	}
	if s.deps.Media == nil {
		return s.Snapshot(), apperrors.NewProcessingError("media store not configured", nil)
	}
	if err := ctx.Err(); err != nil {
		return s.Snapshot(), err
	}

	rc, err := src.Open()
	if err != nil {
		return s.Snapshot(), apperrors.NewProcessingError(ReadFailedMessage, err)
	}
	handle, err := s.deps.Media.Put(src.Name(), rc)
	rc.Close()
	if err != nil {
		return s.Snapshot(), err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.deps.Media.Revoke(handle.Token)
		return Snapshot{}, ErrClosed
	}
	previous := s.audio
	s.audio = &handle
	s.mountLocked()
	snap := s.changedLocked()
	s.mu.Unlock()

	s.deps.Metrics.RecordAudioUpload(handle.Size)
	if previous != nil {
		if err := s.deps.Media.Revoke(previous.Token); err != nil {
			s.deps.Logger.Warn("Failed to revoke previous audio", map[string]interface{}{
				"session": s.ID,
				"error":   err,
			})
		}
	}
	return snap, nil
}

// HandleSave combines the edited nodes with the session metadata and hands
// the payload to the sink. It fails with ErrNoTranscript unless a transcript
// is currently loaded.
func (s *Session) HandleSave(ctx context.Context, nodes []models.EditableNode, speakers []string) (*models.SavePayload, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.state.Status != StatusLoaded {
		s.mu.Unlock()
		return nil, ErrNoTranscript
	}

	if nodes == nil {
		nodes = []models.EditableNode{}
	}
	meta := s.metadata.Clone()
	meta.Speakers = append([]string{}, speakers...)
	meta.Media = ""
	if s.audio != nil {
		meta.Media = s.audio.Name
	}

	payload := &models.SavePayload{
		TranscriptSlate: nodes,
		TranscriptURL:   s.transcriptName,
		Metadata:        meta,
		SavedAt:         s.deps.Now(),
	}
	s.lastActive = payload.SavedAt
	s.mu.Unlock()

	if err := s.deps.Sink.Save(ctx, s.ID, payload); err != nil {
		s.deps.Metrics.RecordSave(len(nodes), false)
		return nil, apperrors.WrapError(err, "save failed", apperrors.ErrorTypeError)
	}
	s.deps.Metrics.RecordSave(len(nodes), true)
	s.deps.Publisher.Publish(s.ID, Event{Type: EventSaved, SessionID: s.ID, Data: map[string]interface{}{
		"saved_at": payload.SavedAt,
		"nodes":    len(nodes),
	}})
	return payload, nil
}

// SaveFunc binds HandleSave to the editor callback contract.
func (s *Session) SaveFunc() editor.SaveFunc {
	return func(ctx context.Context, nodes []models.EditableNode, speakers []string) error {
		_, err := s.HandleSave(ctx, nodes, speakers)
		return err
	}
}

// Nodes maps the loaded document onto editable nodes.
func (s *Session) Nodes() ([]models.EditableNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status != StatusLoaded {
		return nil, ErrNoTranscript
	}
	return transcript.ToEditableNodes(s.state.Document), nil
}

// Metadata returns a copy of the session metadata.
func (s *Session) Metadata() models.TranscriptMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata.Clone()
}

// UpdateMetadata applies the fields present in update.
func (s *Session) UpdateMetadata(update models.MetadataUpdate) (models.TranscriptMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.TranscriptMetadata{}, ErrClosed
	}
	if update.Title != nil {
		s.metadata.Title = *update.Title
	}
	if update.Tags != nil {
		s.metadata.Tags = dedupe(update.Tags)
	}
	if update.TranscriptBy != nil {
		s.metadata.TranscriptBy = *update.TranscriptBy
	}
	s.changedLocked()
	return s.metadata.Clone(), nil
}

// Close tears the session down: the editor is unmounted and the audio handle
// revoked. Calling Close more than once is harmless.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.generation++
	audio := s.audio
	s.audio = nil
	s.deps.Surface.Unmount(s.ID)
	s.deps.Publisher.Publish(s.ID, Event{Type: EventClosed, SessionID: s.ID})
	s.mu.Unlock()

	if audio != nil && s.deps.Media != nil {
		return s.deps.Media.Revoke(audio.Token)
	}
	return nil
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = s.deps.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// dedupe keeps the first occurrence of each tag, since tags form a set.
func dedupe(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
