package session

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/Corphon/TranscriptEditor/internal/editor"
	"github.com/Corphon/TranscriptEditor/internal/media"
	"github.com/Corphon/TranscriptEditor/internal/models"
	"github.com/Corphon/TranscriptEditor/internal/sink"
	"github.com/Corphon/TranscriptEditor/internal/utils"
)

const (
	docA = `{"words":[{"id":1,"start":0,"end":1,"text":"hi"}],"paragraphs":[{"id":1,"start":0,"end":1,"speaker":"A"}]}`
	docB = `{"words":[{"id":7,"start":2,"end":3,"text":"bye"}],"paragraphs":[{"id":9,"start":2,"end":3,"speaker":"B"}]}`
)

// gatedSource blocks the fake reader until gate is closed.
type gatedSource struct {
	BytesSource
	gate chan struct{}
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Publish(_ string, e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	manager  *Manager
	store    *media.Store
	surface  *editor.Recorder
	events   *eventLog
	started  chan string
	payloads []*models.SavePayload
	mu       sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := media.NewStore(filepath.Join(t.TempDir(), "media"), "/media", 0)
	if err != nil {
		t.Fatalf("创建媒体存储失败: %v", err)
	}

	f := &fixture{
		store:   store,
		surface: editor.NewRecorder(),
		events:  &eventLog{},
		started: make(chan string, 8),
	}

	logger := utils.NewLogger(&bytes.Buffer{}, utils.DEBUG)
	reader := ReaderFunc(func(ctx context.Context, src Source) ([]byte, error) {
		if g, ok := src.(gatedSource); ok {
			f.started <- g.Name()
			<-g.gate
		}
		return TextReader{}.Read(ctx, src)
	})

	f.manager = NewManager(Deps{
		Reader:    reader,
		Media:     store,
		Surface:   f.surface,
		Publisher: f.events,
		Logger:    logger,
		Metrics:   utils.NewAPIMetricsWith(utils.NewMetricsCollector(), logger),
		Sink: sink.Func(func(_ context.Context, _ string, p *models.SavePayload) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.payloads = append(f.payloads, p)
			return nil
		}),
		Buttons: func() editor.ButtonConfig { return editor.ButtonConfig{} },
	}, time.Hour)
	return f
}

func src(name, body string) Source {
	return BytesSource{Filename: name, Data: []byte(body)}
}

func TestInitialState(t *testing.T) {
	f := newFixture(t)
	snap := f.manager.Create().Snapshot()

	if snap.Status != StatusEmpty || snap.Loading || snap.Success || snap.Error != nil || snap.Document != nil {
		t.Errorf("初始状态不正确: %+v", snap)
	}
	if snap.Metadata.Tags == nil || snap.Metadata.Speakers == nil || snap.Metadata.Date.IsZero() {
		t.Errorf("初始元数据不正确: %+v", snap.Metadata)
	}
}

func TestLoadWellFormedTranscript(t *testing.T) {
	f := newFixture(t)
	s := f.manager.Create()

	snap, err := s.SelectTranscriptFile(context.Background(), src("a.json", docA))
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}

	want := &models.TranscriptDocument{
		Words:      []models.Word{{ID: 1, Start: 0, End: 1, Text: "hi"}},
		Paragraphs: []models.Paragraph{{ID: 1, Start: 0, End: 1, Speaker: "A"}},
	}
	if !reflect.DeepEqual(snap.Document, want) {
		t.Errorf("文档不一致: %+v", snap.Document)
	}
	if !snap.Success || snap.Loading || snap.Error != nil || snap.Status != StatusLoaded {
		t.Errorf("状态标志不正确: %+v", snap)
	}
	if snap.TranscriptFile != "a.json" {
		t.Errorf("文件名不正确: %q", snap.TranscriptFile)
	}

	view, ok := f.surface.View(s.ID)
	if !ok || !reflect.DeepEqual(view.Document, want) {
		t.Fatalf("编辑器应挂载已加载的文档: %+v", view)
	}
	if view.Buttons.MusicNote || view.Buttons.ReplaceText || view.AutoSaveContentType != "slate" {
		t.Errorf("编辑器配置不正确: %+v", view)
	}
}

func TestLoadMalformedTranscript(t *testing.T) {
	f := newFixture(t)
	s := f.manager.Create()

	snap, err := s.SelectTranscriptFile(context.Background(), src("bad.json", "not valid json"))
	if err == nil {
		t.Fatal("应该返回解码错误")
	}
	if snap.Error == nil || *snap.Error == "" {
		t.Fatal("错误消息不应为空")
	}
	if snap.Document != nil || snap.Success || snap.Loading || snap.Status != StatusError {
		t.Errorf("失败后状态不正确: %+v", snap)
	}
	if _, mounted := f.surface.View(s.ID); mounted {
		t.Error("失败时不应挂载编辑器")
	}
}

func TestReselectReplacesDocument(t *testing.T) {
	f := newFixture(t)
	s := f.manager.Create()
	ctx := context.Background()

	if _, err := s.SelectTranscriptFile(ctx, src("a.json", docA)); err != nil {
		t.Fatalf("加载A失败: %v", err)
	}
	snap, err := s.SelectTranscriptFile(ctx, src("b.json", docB))
	if err != nil {
		t.Fatalf("加载B失败: %v", err)
	}
	if len(snap.Document.Words) != 1 || snap.Document.Words[0].Text != "bye" || snap.TranscriptFile != "b.json" {
		t.Errorf("状态应只反映B: %+v", snap)
	}

	snap, _ = s.SelectTranscriptFile(ctx, src("c.json", "{not json"))
	if snap.Document != nil {
		t.Error("加载失败后不应保留之前的文档")
	}
	if _, mounted := f.surface.View(s.ID); mounted {
		t.Error("加载失败后编辑器应被卸载")
	}
}

func TestLoadingFlagDuringRead(t *testing.T) {
	for _, tc := range []struct {
		name    string
		body    string
		success bool
	}{
		{"success", docA, true},
		{"failure", "not valid json", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			s := f.manager.Create()

			if s.Snapshot().Loading {
				t.Fatal("读取前 loading 应为 false")
			}

			gate := make(chan struct{})
			done := make(chan Snapshot, 1)
			go func() {
				snap, _ := s.SelectTranscriptFile(context.Background(), gatedSource{BytesSource{"x.json", []byte(tc.body)}, gate})
				done <- snap
			}()

			<-f.started
			during := s.Snapshot()
			if !during.Loading || during.Error != nil || during.Document != nil || during.Success {
				t.Errorf("读取期间状态不正确: %+v", during)
			}

			close(gate)
			after := <-done
			if after.Loading || s.Snapshot().Loading {
				t.Error("读取后 loading 应为 false")
			}
			if after.Success != tc.success {
				t.Errorf("success 应为 %v", tc.success)
			}
		})
	}
}

func TestStaleReadIsDiscarded(t *testing.T) {
	f := newFixture(t)
	s := f.manager.Create()
	ctx := context.Background()

	gateA, gateB := make(chan struct{}), make(chan struct{})
	doneA, doneB := make(chan error, 1), make(chan error, 1)

	go func() {
		_, err := s.SelectTranscriptFile(ctx, gatedSource{BytesSource{"a.json", []byte(docA)}, gateA})
		doneA <- err
	}()
	<-f.started
	go func() {
		_, err := s.SelectTranscriptFile(ctx, gatedSource{BytesSource{"b.json", []byte(docB)}, gateB})
		doneB <- err
	}()
	<-f.started

	close(gateB)
	if err := <-doneB; err != nil {
		t.Fatalf("较新的读取应成功: %v", err)
	}
	close(gateA)
	if err := <-doneA; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("过期的读取应返回 ErrSuperseded, got %v", err)
	}

	snap := s.Snapshot()
	if snap.TranscriptFile != "b.json" || snap.Document.Words[0].Text != "bye" {
		t.Errorf("过期结果不应覆盖新状态: %+v", snap)
	}
}

func TestNilSelectionIsNoop(t *testing.T) {
	f := newFixture(t)
	s := f.manager.Create()
	before := s.Snapshot()

	after, err := s.SelectTranscriptFile(context.Background(), nil)
	if err != nil || after.Generation != before.Generation || after.Status != StatusEmpty {
		t.Errorf("空选择应该是空操作: %+v, %v", after, err)
	}
	if _, err := s.SelectAudioFile(context.Background(), nil); err != nil {
		t.Errorf("空音频选择应该是空操作: %v", err)
	}
	if len(f.events.types()) != 0 {
		t.Errorf("空操作不应发布事件: %v", f.events.types())
	}
}

func TestAudioBeforeTranscript(t *testing.T) {
	f := newFixture(t)
	s := f.manager.Create()
	ctx := context.Background()

	snap, err := s.SelectAudioFile(ctx, src("talk.mp3", "ID3 audio"))
	if err != nil {
		t.Fatalf("选择音频失败: %v", err)
	}
	if snap.AudioURL == "" || snap.AudioFile != "talk.mp3" {
		t.Fatalf("音频句柄不正确: %+v", snap)
	}
	if _, mounted := f.surface.View(s.ID); mounted {
		t.Error("未加载转录时不应挂载编辑器")
	}

	if _, err := s.SelectTranscriptFile(ctx, src("a.json", docA)); err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	view, ok := f.surface.View(s.ID)
	if !ok || view.MediaURL != snap.AudioURL {
		t.Errorf("加载后编辑器应获得音频地址: %+v", view)
	}
}

func TestAudioReplacementRevokesPrevious(t *testing.T) {
	f := newFixture(t)
	s := f.manager.Create()
	ctx := context.Background()

	if _, err := s.SelectTranscriptFile(ctx, src("a.json", docA)); err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	first, _ := s.SelectAudioFile(ctx, src("one.wav", "RIFF1"))
	second, _ := s.SelectAudioFile(ctx, src("two.wav", "RIFF2"))

	if first.AudioURL == second.AudioURL {
		t.Fatal("新音频应有新的地址")
	}
	if f.store.Count() != 1 {
		t.Errorf("旧句柄应被撤销, 剩余 %d", f.store.Count())
	}
	view, _ := f.surface.View(s.ID)
	if view.MediaURL != second.AudioURL {
		t.Errorf("编辑器应重新挂载新音频: %q", view.MediaURL)
	}
}

func TestHandleSaveWithoutTranscript(t *testing.T) {
	f := newFixture(t)
	s := f.manager.Create()

	_, err := s.HandleSave(context.Background(), []models.EditableNode{{Speaker: "A"}}, []string{"A"})
	if !errors.Is(err, ErrNoTranscript) {
		t.Fatalf("未加载时保存应返回 ErrNoTranscript, got %v", err)
	}

	s.SelectTranscriptFile(context.Background(), src("bad.json", "nope"))
	if _, err := s.HandleSave(context.Background(), nil, nil); !errors.Is(err, ErrNoTranscript) {
		t.Fatalf("加载失败后保存应返回 ErrNoTranscript, got %v", err)
	}
	if len(f.payloads) != 0 {
		t.Error("不应调用 sink")
	}
}

func TestHandleSavePayload(t *testing.T) {
	f := newFixture(t)
	s := f.manager.Create()
	ctx := context.Background()

	s.SelectTranscriptFile(ctx, src("dpe.json", docA))
	nodes := []models.EditableNode{{Speaker: "A", Start: 0, Type: "timedText", Children: models.NodeChildren{Text: "hi"}}}

	payload, err := s.HandleSave(ctx, nodes, []string{"A", "B"})
	if err != nil {
		t.Fatalf("保存失败: %v", err)
	}
	if payload.TranscriptURL != "dpe.json" || payload.Metadata.Media != "" {
		t.Errorf("载荷不正确: %+v", payload)
	}
	if !reflect.DeepEqual(payload.Metadata.Speakers, []string{"A", "B"}) {
		t.Errorf("说话人不正确: %v", payload.Metadata.Speakers)
	}

	s.SelectAudioFile(ctx, src("talk.mp3", "ID3"))
	payload, _ = s.HandleSave(ctx, nodes, nil)
	if payload.Metadata.Media != "talk.mp3" {
		t.Errorf("应包含音频文件名: %q", payload.Metadata.Media)
	}
	if len(f.payloads) != 2 {
		t.Errorf("sink 应被调用两次, 实际 %d", len(f.payloads))
	}

	types := f.events.types()
	if types[len(types)-1] != EventSaved {
		t.Errorf("最后一个事件应为 saved: %v", types)
	}
}

func TestUpdateMetadata(t *testing.T) {
	f := newFixture(t)
	s := f.manager.Create()

	title := "Συνέντευξη"
	meta, err := s.UpdateMetadata(models.MetadataUpdate{Title: &title, Tags: []string{"a", "b", "a", ""}})
	if err != nil {
		t.Fatalf("更新元数据失败: %v", err)
	}
	if meta.Title != title || !reflect.DeepEqual(meta.Tags, []string{"a", "b"}) {
		t.Errorf("元数据不正确: %+v", meta)
	}
}

func TestCloseRevokesAudio(t *testing.T) {
	f := newFixture(t)
	s := f.manager.Create()
	ctx := context.Background()

	s.SelectTranscriptFile(ctx, src("a.json", docA))
	s.SelectAudioFile(ctx, src("talk.mp3", "ID3"))

	if err := f.manager.Close(s.ID); err != nil {
		t.Fatalf("关闭失败: %v", err)
	}
	if f.store.Count() != 0 {
		t.Error("关闭后音频应被撤销")
	}
	if _, mounted := f.surface.View(s.ID); mounted {
		t.Error("关闭后编辑器应被卸载")
	}
	if _, err := s.SelectTranscriptFile(ctx, src("a.json", docA)); !errors.Is(err, ErrClosed) {
		t.Errorf("关闭后操作应返回 ErrClosed, got %v", err)
	}
	if _, err := f.manager.Get(s.ID); err == nil {
		t.Error("关闭后会话不应再可获取")
	}
	if err := s.Close(); err != nil {
		t.Errorf("重复关闭应无害: %v", err)
	}
}
