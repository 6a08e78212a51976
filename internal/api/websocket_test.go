package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Corphon/TranscriptEditor/internal/editor"
	"github.com/Corphon/TranscriptEditor/internal/models"
	"github.com/Corphon/TranscriptEditor/internal/session"
	"github.com/Corphon/TranscriptEditor/internal/utils"
	"github.com/gorilla/websocket"
)

// wsMessage 测试端解析的消息
type wsMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	Code      string          `json:"code"`
}

func dialSession(t *testing.T, server *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/sessions/" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket 连接失败: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil 读取消息直到出现指定类型
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) wsMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("等待 %s 消息失败: %v", msgType, err)
		}
		if msg.Type == msgType {
			return msg
		}
	}
}

func TestWebSocketMountAndSave(t *testing.T) {
	ts := newTestServer(t, nil)
	server := httptest.NewServer(ts.router)
	defer server.Close()

	snap := ts.createSession(t)
	conn := dialSession(t, server, snap.ID)

	welcome := readUntil(t, conn, MessageWelcome)
	if welcome.SessionID != snap.ID {
		t.Errorf("欢迎消息的会话ID不正确: %q", welcome.SessionID)
	}
	readUntil(t, conn, session.EventState)

	ts.do(t, uploadRequest(t, "/api/sessions/"+snap.ID+"/audio", "talk.mp3", []byte("ID3-audio")))
	ts.do(t, uploadRequest(t, "/api/sessions/"+snap.ID+"/transcript", "talk.json", []byte(sampleTranscript)))

	mount := readUntil(t, conn, MessageMount)
	var view editor.View
	if err := json.Unmarshal(mount.Data, &view); err != nil {
		t.Fatalf("解析视图失败: %v", err)
	}
	if view.Document == nil || len(view.Document.Paragraphs) != 2 {
		t.Fatalf("视图文档不正确: %+v", view)
	}
	if !strings.HasPrefix(view.MediaURL, "/media/") || view.AutoSaveContentType != editor.AutoSaveContentTypeSlate {
		t.Errorf("视图内容不正确: %+v", view)
	}
	if view.Buttons.MusicNote || view.Buttons.ReplaceText {
		t.Error("按钮默认应禁用")
	}

	err := conn.WriteJSON(map[string]interface{}{
		"type": "save",
		"nodes": []map[string]interface{}{{
			"children": []map[string]interface{}{{"text": "Καλημέρα", "words": []interface{}{}}},
			"speaker":  "SPEAKER_A",
			"start":    0,
			"type":     "timedText",
		}},
		"speakers": []string{"SPEAKER_A"},
	})
	if err != nil {
		t.Fatalf("发送保存消息失败: %v", err)
	}
	readUntil(t, conn, session.EventSaved)

	saved := ts.savedPayloads()
	if len(saved) != 1 {
		t.Fatalf("应保存一次, 实际 %d", len(saved))
	}
	if saved[0].Metadata.Media != "talk.mp3" || saved[0].TranscriptSlate[0].Children.Text != "Καλημέρα" {
		t.Errorf("保存内容不正确: %+v", saved[0])
	}
}

func TestWebSocketLateJoinerReceivesView(t *testing.T) {
	ts := newTestServer(t, nil)
	server := httptest.NewServer(ts.router)
	defer server.Close()

	snap := ts.createSession(t)
	ts.do(t, uploadRequest(t, "/api/sessions/"+snap.ID+"/transcript", "talk.json", []byte(sampleTranscript)))

	conn := dialSession(t, server, snap.ID)
	state := readUntil(t, conn, session.EventState)
	var current session.Snapshot
	json.Unmarshal(state.Data, &current)
	if current.Status != session.StatusLoaded {
		t.Errorf("快照状态不正确: %s", current.Status)
	}
	readUntil(t, conn, MessageMount)

	// 关闭会话时编辑器被卸载
	ts.do(t, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+snap.ID, nil))
	readUntil(t, conn, MessageUnmount)
}

func TestWebSocketErrorsAndPing(t *testing.T) {
	ts := newTestServer(t, nil)
	server := httptest.NewServer(ts.router)
	defer server.Close()

	snap := ts.createSession(t)
	conn := dialSession(t, server, snap.ID)
	readUntil(t, conn, MessageWelcome)

	conn.WriteJSON(map[string]string{"type": "ping"})
	readUntil(t, conn, MessagePong)

	conn.WriteJSON(map[string]interface{}{"type": "save", "nodes": []interface{}{}, "speakers": []string{}})
	msg := readUntil(t, conn, MessageError)
	if msg.Code != ErrorNoTranscript {
		t.Errorf("未加载转录时保存应返回 NO_TRANSCRIPT, 实际 %q", msg.Code)
	}

	conn.WriteJSON(map[string]string{"type": "dance"})
	msg = readUntil(t, conn, MessageError)
	if msg.Code != ErrorBadRequest {
		t.Errorf("未知消息类型应返回 BAD_REQUEST, 实际 %q", msg.Code)
	}

	conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
	readUntil(t, conn, MessageError)
}

func TestWebSocketUnknownSession(t *testing.T) {
	ts := newTestServer(t, nil)
	server := httptest.NewServer(ts.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/sessions/missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("未知会话的连接应失败")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("应返回 404")
	}
}

// fakeConn 不做任何网络操作的连接
type fakeConn struct {
	closed bool
}

func (f *fakeConn) WriteMessage(int, []byte) error { return nil }
func (f *fakeConn) ReadMessage() (int, []byte, error) { return 0, nil, errors.New("closed") }
func (f *fakeConn) Close() error { f.closed = true; return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(appData string) error) {}

func TestHubViewsAndCleanup(t *testing.T) {
	hub := NewHub(utils.NewLogger(io.Discard, utils.ERROR))

	conn := &fakeConn{}
	client := newWebSocketClient(conn, "s1")
	hub.register(client)

	hub.Mount("s1", editor.View{Document: &models.TranscriptDocument{}})
	if _, ok := hub.View("s1"); !ok {
		t.Fatal("挂载后应能取到视图")
	}
	select {
	case raw := <-client.send:
		if !strings.Contains(string(raw), `"type":"mount"`) {
			t.Errorf("应收到 mount 消息: %s", raw)
		}
	default:
		t.Fatal("客户端应收到消息")
	}

	hub.Unmount("s1")
	if _, ok := hub.View("s1"); ok {
		t.Error("卸载后视图应被移除")
	}

	hub.pingTimeout = 0
	if removed := hub.cleanupExpiredConnections(); removed != 1 {
		t.Errorf("应清理1个过期连接, 实际 %d", removed)
	}
	if !conn.closed || !client.IsClosed() {
		t.Error("过期连接应被关闭")
	}
	if status := hub.GetStatus(); status["total_connections"] != 0 {
		t.Errorf("连接数不正确: %v", status)
	}
}
