package httphandler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ericfisherdev/archiverestore/internal/domain/model"
)

// Event types pushed to websocket subscribers.
const (
	EventCredentialReady = "credential_ready"
	EventProgress        = "progress"
	EventResult          = "result"
	EventError           = "error"
)

const (
	connOutboxSize  = 64
	eventWriteWait  = 10 * time.Second
	eventReadLimit  = 512
	eventPongWait   = 60 * time.Second
	eventPingPeriod = eventPongWait * 9 / 10
)

// Event is the envelope of every message on the event stream. Exactly one
// payload field is set, matching Type.
type Event struct {
	Type       string            `json:"type"`
	Credential *CredentialEvent  `json:"credential,omitempty"`
	Progress   *ProgressResponse `json:"progress,omitempty"`
	Result     *ResultResponse   `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// CredentialEvent reports credential readiness without exposing the value.
type CredentialEvent struct {
	Ready      bool   `json:"ready"`
	CapturedAt string `json:"captured_at,omitempty"`
}

// subscriber is one websocket connection with its own send queue, so a slow
// client never blocks the job goroutine publishing events.
type subscriber struct {
	ws        *websocket.Conn
	wrMu      sync.Mutex
	outbox    chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once
}

func newSubscriber(ws *websocket.Conn) *subscriber {
	return &subscriber{
		ws:      ws,
		outbox:  make(chan []byte, connOutboxSize),
		closeCh: make(chan struct{}),
	}
}

// write serializes writes; gorilla/websocket allows one concurrent writer.
func (s *subscriber) write(msgType int, data []byte) error {
	s.wrMu.Lock()
	defer s.wrMu.Unlock()
	_ = s.ws.SetWriteDeadline(time.Now().Add(eventWriteWait))
	return s.ws.WriteMessage(msgType, data)
}

func (s *subscriber) enqueue(data []byte) bool {
	select {
	case <-s.closeCh:
		return false
	default:
	}
	select {
	case s.outbox <- data:
		return true
	default:
		return false
	}
}

func (s *subscriber) closeNow() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
		_ = s.ws.Close()
	})
}

func (s *subscriber) writeLoop() {
	ticker := time.NewTicker(eventPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.closeCh:
			return
		case data := <-s.outbox:
			if err := s.write(websocket.TextMessage, data); err != nil {
				s.closeNow()
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				s.closeNow()
				return
			}
		}
	}
}

// EventHub fans job and credential events out to websocket subscribers.
type EventHub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu   sync.RWMutex
	subs map[string]*subscriber
}

// NewEventHub creates an EventHub that accepts connections from local
// origins only.
func NewEventHub(logger *slog.Logger) *EventHub {
	return &EventHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkLocalOrigin,
		},
		logger: logger,
		subs:   make(map[string]*subscriber),
	}
}

// Serve upgrades the request and streams events until the client goes away.
// The initial events are queued before any broadcast reaches the new
// subscriber.
func (h *EventHub) Serve(w http.ResponseWriter, r *http.Request, initial ...Event) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	id := uuid.NewString()
	sub := newSubscriber(ws)
	for _, ev := range initial {
		if data, err := json.Marshal(ev); err == nil {
			sub.enqueue(data)
		}
	}

	h.mu.Lock()
	h.subs[id] = sub
	h.mu.Unlock()
	h.logger.Info("event subscriber connected", "conn", id, "remote", r.RemoteAddr)

	go sub.writeLoop()
	h.readLoop(id, sub)
}

// readLoop discards client messages and returns once the connection closes.
func (h *EventHub) readLoop(id string, sub *subscriber) {
	defer h.disconnect(id)

	sub.ws.SetReadLimit(eventReadLimit)
	_ = sub.ws.SetReadDeadline(time.Now().Add(eventPongWait))
	sub.ws.SetPongHandler(func(string) error {
		return sub.ws.SetReadDeadline(time.Now().Add(eventPongWait))
	})
	for {
		if _, _, err := sub.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) disconnect(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	if ok {
		sub.closeNow()
		h.logger.Info("event subscriber disconnected", "conn", id)
	}
}

// Publish sends ev to every subscriber. Subscribers whose queue is full are
// disconnected.
func (h *EventHub) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal event failed", "type", ev.Type, "error", err)
		return
	}

	h.mu.RLock()
	snapshot := make(map[string]*subscriber, len(h.subs))
	for id, sub := range h.subs {
		snapshot[id] = sub
	}
	h.mu.RUnlock()

	for id, sub := range snapshot {
		if !sub.enqueue(data) {
			h.logger.Warn("event subscriber queue overloaded, disconnecting", "conn", id, "outbox_cap", connOutboxSize)
			h.disconnect(id)
		}
	}
}

// PublishProgress publishes a job progress event.
func (h *EventHub) PublishProgress(p model.Progress) {
	resp := toProgressResponse(p)
	h.Publish(Event{Type: EventProgress, Progress: &resp})
}

// PublishResult publishes the terminal report of a run: an error event when
// err is non-nil, otherwise a result event.
func (h *EventHub) PublishResult(result model.RestoreResult, err error) {
	resp := toResultResponse(result, err)
	if err != nil {
		h.Publish(Event{Type: EventError, Result: &resp, Error: err.Error()})
		return
	}
	h.Publish(Event{Type: EventResult, Result: &resp})
}

// PublishCredential publishes the credential readiness event.
func (h *EventHub) PublishCredential(cred model.Credential) {
	h.Publish(credentialEvent(cred, !cred.IsZero()))
}

// Subscribers returns the number of connected subscribers.
func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *EventHub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*subscriber)
	h.mu.Unlock()
	for _, sub := range subs {
		sub.closeNow()
	}
}

func credentialEvent(cred model.Credential, ready bool) Event {
	ev := CredentialEvent{Ready: ready}
	if ready {
		ev.CapturedAt = cred.CapturedAt.UTC().Format(time.RFC3339)
	}
	return Event{Type: EventCredentialReady, Credential: &ev}
}

// checkLocalOrigin accepts connections without an Origin header (non-browser
// clients) or from a loopback origin.
func checkLocalOrigin(r *http.Request) bool {
	origin := strings.ToLower(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, allowed := range []string{
		"http://localhost", "https://localhost",
		"http://127.0.0.1", "https://127.0.0.1",
		"http://[::1]", "https://[::1]",
	} {
		if origin == allowed || strings.HasPrefix(origin, allowed+":") || strings.HasPrefix(origin, allowed+"/") {
			return true
		}
	}
	return false
}
