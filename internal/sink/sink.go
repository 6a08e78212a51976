// internal/sink/sink.go
package sink

import (
	"context"
	"errors"

	"github.com/Corphon/TranscriptEditor/internal/models"
	"github.com/Corphon/TranscriptEditor/internal/utils"
)

// Sink receives the combined payload of an editor save. Durable storage is
// not provided here; implementations plug in behind this interface.
type Sink interface {
	Save(ctx context.Context, sessionID string, payload *models.SavePayload) error
}

// Func adapts a plain function to Sink.
type Func func(ctx context.Context, sessionID string, payload *models.SavePayload) error

// Save calls f.
func (f Func) Save(ctx context.Context, sessionID string, payload *models.SavePayload) error {
	return f(ctx, sessionID, payload)
}

// LogSink reports payloads through the structured logger.
type LogSink struct {
	logger *utils.Logger
}

// NewLogSink creates a LogSink; a nil logger means the global one.
func NewLogSink(logger *utils.Logger) *LogSink {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &LogSink{logger: logger}
}

// Save logs the payload.
func (s *LogSink) Save(ctx context.Context, sessionID string, payload *models.SavePayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("Saving transcript", map[string]interface{}{
		"session":         sessionID,
		"transcriptUrl":   payload.TranscriptURL,
		"nodes":           len(payload.TranscriptSlate),
		"metadata":        payload.Metadata,
		"transcriptSlate": payload.TranscriptSlate,
	})
	return nil
}

// Multi fans a payload out to every sink and joins their errors.
type Multi []Sink

// Save forwards to each sink in order; every sink is tried even if one fails.
func (m Multi) Save(ctx context.Context, sessionID string, payload *models.SavePayload) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Save(ctx, sessionID, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
