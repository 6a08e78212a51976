package sink

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Corphon/TranscriptEditor/internal/models"
	"github.com/Corphon/TranscriptEditor/internal/utils"
)

func samplePayload() *models.SavePayload {
	return &models.SavePayload{
		TranscriptSlate: []models.EditableNode{{Speaker: "A", Type: "timedText"}},
		TranscriptURL:   "dpe.json",
		Metadata:        models.TranscriptMetadata{Speakers: []string{"A"}, Media: "a.mp3"},
	}
}

func TestLogSinkWritesPayload(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(utils.NewLogger(&buf, utils.INFO))

	if err := s.Save(context.Background(), "s1", samplePayload()); err != nil {
		t.Fatalf("保存失败: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Saving transcript", "session=s1", "transcriptUrl=dpe.json", `"media":"a.mp3"`} {
		if !strings.Contains(out, want) {
			t.Errorf("日志缺少 %q: %s", want, out)
		}
	}
}

func TestLogSinkHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewLogSink(utils.NewLogger(&bytes.Buffer{}, utils.INFO)).Save(ctx, "s1", samplePayload()); !errors.Is(err, context.Canceled) {
		t.Errorf("已取消的上下文应返回错误, got %v", err)
	}
}

func TestMultiTriesEverySink(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	m := Multi{
		Func(func(context.Context, string, *models.SavePayload) error { calls++; return boom }),
		nil,
		Func(func(context.Context, string, *models.SavePayload) error { calls++; return nil }),
	}

	err := m.Save(context.Background(), "s1", samplePayload())
	if !errors.Is(err, boom) {
		t.Errorf("应返回第一个 sink 的错误, got %v", err)
	}
	if calls != 2 {
		t.Errorf("每个 sink 都应被调用, 实际 %d", calls)
	}
}
