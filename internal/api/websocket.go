// internal/api/websocket.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Corphon/TranscriptEditor/internal/editor"
	"github.com/Corphon/TranscriptEditor/internal/session"
	"github.com/Corphon/TranscriptEditor/internal/utils"
	"github.com/gorilla/websocket"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// 服务端推送的消息类型
const (
	MessageWelcome = "welcome"
	MessageMount   = "mount"
	MessageUnmount = "unmount"
	MessageError   = "error"
	MessagePong    = "pong"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 54 * time.Second
	pongWait     = 60 * time.Second
)

// WebSocketConnection 定义 WebSocket 连接的接口
type WebSocketConnection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// Message 服务端推送给编辑器的消息
type Message struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// WebSocketClient 表示一个编辑器连接
type WebSocketClient struct {
	conn      WebSocketConnection
	sessionID string
	send      chan []byte
	done      chan struct{}
	closed    int32 // 0=开启，1=关闭
	lastPing  atomic.Int64
	createdAt time.Time
}

func newWebSocketClient(conn WebSocketConnection, sessionID string) *WebSocketClient {
	client := &WebSocketClient{
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, 256),
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
	client.UpdatePing()
	return client
}

// Close 安全关闭客户端连接
func (client *WebSocketClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		close(client.done)
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// IsClosed 检查连接是否已关闭
func (client *WebSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// UpdatePing 更新最后活跃时间
func (client *WebSocketClient) UpdatePing() {
	client.lastPing.Store(time.Now().UnixNano())
}

// IsExpired 检查连接是否超时
func (client *WebSocketClient) IsExpired(timeout time.Duration) bool {
	if timeout <= 0 {
		return true
	}
	return time.Since(time.Unix(0, client.lastPing.Load())) > timeout
}

// enqueue 非阻塞地放入发送队列，队列满时返回 false
func (client *WebSocketClient) enqueue(msg []byte) bool {
	if client.IsClosed() {
		return false
	}
	select {
	case client.send <- msg:
		return true
	default:
		return false
	}
}

// writePump 把发送队列写入连接，并定期发送 ping
func (client *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case <-client.done:
			return

		case message := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Hub 管理编辑器连接，同时作为会话的编辑界面和事件发布者
type Hub struct {
	connections map[string]map[*WebSocketClient]bool // sessionID -> clients
	views       map[string]editor.View               // 每个会话当前挂载的视图
	mutex       sync.RWMutex
	pingTimeout time.Duration
	logger      *utils.Logger
}

var (
	_ editor.Surface    = (*Hub)(nil)
	_ session.Publisher = (*Hub)(nil)
)

// NewHub 创建连接管理器
func NewHub(logger *utils.Logger) *Hub {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &Hub{
		connections: make(map[string]map[*WebSocketClient]bool),
		views:       make(map[string]editor.View),
		pingTimeout: pongWait,
		logger:      logger,
	}
}

// Run 定期清理过期连接，ctx 结束时关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case <-ticker.C:
			h.cleanupExpiredConnections()
		}
	}
}

// register 注册新客户端
func (h *Hub) register(client *WebSocketClient) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.connections[client.sessionID] == nil {
		h.connections[client.sessionID] = make(map[*WebSocketClient]bool)
	}
	h.connections[client.sessionID][client] = true

	h.logger.Info("Editor connected", map[string]interface{}{"session": client.sessionID})
}

// unregister 注销客户端
func (h *Hub) unregister(client *WebSocketClient) {
	h.mutex.Lock()
	if clients, exists := h.connections[client.sessionID]; exists {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.connections, client.sessionID)
		}
	}
	h.mutex.Unlock()

	client.Close()
	h.logger.Info("Editor disconnected", map[string]interface{}{"session": client.sessionID})
}

// cleanupExpiredConnections 清理过期和死连接
func (h *Hub) cleanupExpiredConnections() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	removed := 0
	for sessionID, clients := range h.connections {
		for client := range clients {
			if client.IsClosed() || client.IsExpired(h.pingTimeout) {
				delete(clients, client)
				client.Close()
				removed++
			}
		}
		if len(clients) == 0 {
			delete(h.connections, sessionID)
		}
	}
	return removed
}

func (h *Hub) shutdown() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for _, clients := range h.connections {
		for client := range clients {
			client.Close()
		}
	}
	h.connections = make(map[string]map[*WebSocketClient]bool)
	h.logger.Info("Editor hub stopped", nil)
}

// broadcast 向会话的所有连接发送消息
func (h *Hub) broadcast(sessionID string, msg Message) {
	msg.SessionID = sessionID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to encode editor message", map[string]interface{}{"type": msg.Type, "error": err})
		return
	}

	h.mutex.RLock()
	clients := make([]*WebSocketClient, 0, len(h.connections[sessionID]))
	for client := range h.connections[sessionID] {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		if !client.enqueue(payload) {
			// 队列满的连接无法跟上，直接断开
			client.Close()
		}
	}
}

// send 向单个客户端发送消息
func (h *Hub) send(client *WebSocketClient, msg Message) {
	msg.SessionID = client.sessionID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if payload, err := json.Marshal(msg); err == nil {
		client.enqueue(payload)
	}
}

// Mount 记录并推送会话的编辑视图
func (h *Hub) Mount(sessionID string, view editor.View) {
	h.mutex.Lock()
	h.views[sessionID] = view
	h.mutex.Unlock()

	h.broadcast(sessionID, Message{Type: MessageMount, Data: view})
}

// Unmount 移除会话的编辑视图
func (h *Hub) Unmount(sessionID string) {
	h.mutex.Lock()
	_, mounted := h.views[sessionID]
	delete(h.views, sessionID)
	h.mutex.Unlock()

	if mounted {
		h.broadcast(sessionID, Message{Type: MessageUnmount})
	}
}

// View 返回会话当前挂载的视图
func (h *Hub) View(sessionID string) (editor.View, bool) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	view, ok := h.views[sessionID]
	return view, ok
}

// Publish 转发会话事件
func (h *Hub) Publish(sessionID string, event session.Event) {
	h.broadcast(sessionID, Message{Type: event.Type, Data: event.Data})
}

// GetStatus 获取连接状态
func (h *Hub) GetStatus() map[string]interface{} {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	total := 0
	sessions := make(map[string]int, len(h.connections))
	for sessionID, clients := range h.connections {
		sessions[sessionID] = len(clients)
		total += len(clients)
	}

	return map[string]interface{}{
		"total_connections": total,
		"mounted_views":     len(h.views),
		"sessions":          sessions,
	}
}
