// internal/api/websocket_handlers.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Corphon/TranscriptEditor/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// inboundMessage 编辑器发来的消息
type inboundMessage struct {
	Type     string                `json:"type"`
	Nodes    []models.EditableNode `json:"nodes"`
	Speakers []string              `json:"speakers"`
}

// SessionWebSocket 处理编辑器 WebSocket 连接
func (h *Handler) SessionWebSocket(c *gin.Context) {
	sess, err := h.Sessions.Get(c.Param("id"))
	if err != nil {
		h.Response.NotFound(c, "session")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn("WebSocket upgrade failed", map[string]interface{}{"session": sess.ID, "error": err})
		return
	}

	client := newWebSocketClient(conn, sess.ID)
	h.Hub.register(client)
	defer h.Hub.unregister(client)

	go client.writePump()

	// 新连接先收到欢迎消息、当前快照和已挂载的视图
	h.Hub.send(client, Message{Type: MessageWelcome})
	h.Hub.send(client, Message{Type: "state", Data: sess.Snapshot()})
	if view, ok := h.Hub.View(sess.ID); ok {
		h.Hub.send(client, Message{Type: MessageMount, Data: view})
	}

	h.readPump(client)
}

// readPump 读取编辑器消息直到连接关闭
func (h *Handler) readPump(client *WebSocketClient) {
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.Logger.Warn("WebSocket read failed", map[string]interface{}{"session": client.sessionID, "error": err})
			}
			return
		}

		client.UpdatePing()
		client.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.Hub.send(client, Message{Type: MessageError, Error: "malformed message: " + err.Error(), Code: ErrorBadRequest})
			continue
		}
		h.handleMessage(client, msg)
	}
}

// handleMessage 处理收到的编辑器消息
func (h *Handler) handleMessage(client *WebSocketClient, msg inboundMessage) {
	switch msg.Type {
	case "save":
		h.handleSaveMessage(client, msg)
	case "ping":
		h.Hub.send(client, Message{Type: MessagePong})
	default:
		h.Hub.send(client, Message{Type: MessageError, Error: "unknown message type: " + msg.Type, Code: ErrorBadRequest})
	}
}

// handleSaveMessage 把编辑器的保存回调转交给会话
func (h *Handler) handleSaveMessage(client *WebSocketClient, msg inboundMessage) {
	sess, err := h.Sessions.Get(client.sessionID)
	if err != nil {
		h.Hub.send(client, Message{Type: MessageError, Error: err.Error(), Code: ErrorSessionNotFound})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 成功时会话会通过 Hub 广播 saved 事件
	if _, err := sess.HandleSave(ctx, msg.Nodes, msg.Speakers); err != nil {
		status, code := classifyError(err)
		if status >= http.StatusInternalServerError {
			h.Logger.Error("Save failed", map[string]interface{}{"session": sess.ID, "error": err})
		}
		h.Hub.send(client, Message{Type: MessageError, Error: err.Error(), Code: code})
	}
}
