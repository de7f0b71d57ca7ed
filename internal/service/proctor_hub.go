package service

import (
	"ai_interview_backend/pkg/logger"
	"ai_interview_backend/pkg/monitoring"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	hubWriteWait  = 10 * time.Second
	hubPongWait   = 60 * time.Second
	hubPingPeriod = (hubPongWait * 9) / 10

	// Redis 频道，多实例部署时事件跨节点转发
	proctorChannel = "proctor_events"
)

var hubUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// LiveEvent 推送给面试官观察端的事件载荷
type LiveEvent struct {
	SessionID uint           `json:"sessionId"`
	EventType string         `json:"eventType"`
	Score     float64        `json:"score"`
	ImageURL  string         `json:"imageUrl,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	At        time.Time      `json:"at"`
}

type watcher struct {
	hub       *ProctorHub
	conn      *websocket.Conn
	send      chan []byte
	userID    uint
	sessionID uint
}

// ProctorHub 面向 HR 观察端的监考事件实时推送。观察端按会话订阅，
// 本实例落库的可疑事件先发 Redis 频道，再由各实例推给本地连接。
type ProctorHub struct {
	mu       sync.RWMutex
	watchers map[uint]map[*watcher]struct{} // sessionID -> 连接集合

	register   chan *watcher
	unregister chan *watcher
	redis      *redis.Client
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewProctorHub(rdb *redis.Client) *ProctorHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &ProctorHub{
		watchers:   make(map[uint]map[*watcher]struct{}),
		register:   make(chan *watcher),
		unregister: make(chan *watcher),
		redis:      rdb,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (h *ProctorHub) Run() {
	var pubsubCh <-chan *redis.Message
	if h.redis != nil {
		pubsub := h.redis.Subscribe(h.ctx, proctorChannel)
		pubsubCh = pubsub.Channel()
		defer pubsub.Close()
	}

	for {
		select {
		case w := <-h.register:
			h.mu.Lock()
			set, ok := h.watchers[w.sessionID]
			if !ok {
				set = make(map[*watcher]struct{})
				h.watchers[w.sessionID] = set
			}
			set[w] = struct{}{}
			h.mu.Unlock()
			monitoring.LiveWatcherGauge.Inc()

		case w := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.watchers[w.sessionID]; ok {
				if _, ok := set[w]; ok {
					delete(set, w)
					close(w.send)
					monitoring.LiveWatcherGauge.Dec()
					if len(set) == 0 {
						delete(h.watchers, w.sessionID)
					}
				}
			}
			h.mu.Unlock()

		case msg, ok := <-pubsubCh:
			if !ok {
				pubsubCh = nil
				continue
			}
			var event LiveEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Log.Error("监考事件反序列化失败", zap.Error(err))
				continue
			}
			h.pushLocal(event.SessionID, []byte(msg.Payload))

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *ProctorHub) Stop() {
	h.cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	for sessionID, set := range h.watchers {
		for w := range set {
			close(w.send)
		}
		delete(h.watchers, sessionID)
	}
}

// Publish 广播一条事件。有 Redis 时走频道以覆盖多实例，否则仅推本地。
func (h *ProctorHub) Publish(event LiveEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if h.redis != nil {
		if err := h.redis.Publish(h.ctx, proctorChannel, payload).Err(); err == nil {
			return
		}
	}
	h.pushLocal(event.SessionID, payload)
}

func (h *ProctorHub) pushLocal(sessionID uint, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for w := range h.watchers[sessionID] {
		select {
		case w.send <- payload:
		default:
			// 观察端消费不过来时丢弃，不阻塞分析链路
		}
	}
}

func (w *watcher) readPump() {
	defer func() {
		w.hub.unregister <- w
		w.conn.Close()
	}()
	w.conn.SetReadLimit(512)
	w.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(hubPongWait))
		return nil
	})
	for {
		// 观察端是只读连接，收到的消息直接丢弃
		if _, _, err := w.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Error("监考观察连接异常断开", zap.Error(err), zap.Uint("userId", w.userID))
			}
			break
		}
	}
}

func (w *watcher) writePump() {
	ticker := time.NewTicker(hubPingPeriod)
	defer func() {
		ticker.Stop()
		w.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-w.send:
			w.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if !ok {
				w.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := w.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			w.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeProctorWs 将 HTTP 连接升级为观察端 WebSocket 并注册到 hub
func ServeProctorWs(hub *ProctorHub, w http.ResponseWriter, r *http.Request, userID, sessionID uint) {
	conn, err := hubUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket 升级失败", zap.Error(err), zap.Uint("userId", userID))
		return
	}
	client := &watcher{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 64),
		userID:    userID,
		sessionID: sessionID,
	}
	hub.register <- client

	go client.writePump()
	go client.readPump()
}
