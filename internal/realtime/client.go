package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eventdesk/backend/internal/apperr"
	"github.com/eventdesk/backend/internal/auth"
)

const (
	writeWait    = 10 * time.Second
	maxTopics    = 32
	sendBuffer   = 256
	readLimit    = 4096
	eventError   = "error"
	eventReady   = "subscribed"
	eventRemoved = "unsubscribed"
)

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type topicRequest struct {
	Topic string `json:"topic"`
}

// Listener authorizes a topic for a principal and starts delivering its updates.
// The returned cancel must be safe to call more than once.
type Listener interface {
	Listen(ctx context.Context, p *auth.Principal, topic string, deliver func(event string, data interface{})) (cancel func(), err error)
}

// Mux routes a topic to the Listener registered for its kind.
type Mux map[string]Listener

// Listen implements Listener.
func (m Mux) Listen(ctx context.Context, p *auth.Principal, topic string, deliver func(event string, data interface{})) (func(), error) {
	kind, _, err := ParseTopic(topic)
	if err != nil {
		return nil, apperr.Invalid("%v", err)
	}
	l, ok := m[kind]
	if !ok {
		return nil, apperr.Invalid("topic kind %q not served", kind)
	}
	return l.Listen(ctx, p, topic, deliver)
}

// Authenticator turns the token query parameter into a principal.
type Authenticator func(ctx context.Context, token string) (*auth.Principal, error)

// Client is a single WebSocket connection and the topics it listens to.
//
// Outgoing messages wait in queue for the write pump. Messages delivered while a topic is
// being primed (its snapshot or backlog) are never counted against sendBuffer; only live
// updates that pile up past it mark the client as too slow.
type Client struct {
	ID        string
	Principal *auth.Principal
	listener  Listener
	conn      *websocket.Conn
	logger    *zap.Logger
	wake      chan struct{}

	ctx      context.Context
	mu       sync.Mutex
	topics   map[string]func()
	stopped  bool
	queue    []WSMessage
	snapshot int
	priming  int
	closed   bool
}

func newClient(ctx context.Context, listener Listener, p *auth.Principal, logger *zap.Logger) *Client {
	return &Client{
		ID:        uuid.New().String(),
		Principal: p,
		listener:  listener,
		logger:    logger.With(zap.String("user_id", p.UserID.String())),
		wake:      make(chan struct{}, 1),
		ctx:       ctx,
		topics:    make(map[string]func()),
	}
}

// ServeWs handles the WebSocket upgrade and runs the client loop. An optional topic query
// parameter is subscribed before the loop starts; more can be added with "subscribe" messages.
func ServeWs(listener Listener, authenticate Authenticator, checkOrigin func(*http.Request) bool, logger *zap.Logger) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
			return
		}
		p, err := authenticate(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		client := newClient(ctx, listener, p, logger)

		if topic := c.Query("topic"); topic != "" {
			if err := client.subscribe(topic); err != nil {
				status := http.StatusForbidden
				if errors.Is(err, apperr.ErrNotFound) {
					status = http.StatusNotFound
				} else if errors.Is(err, apperr.ErrInvalidArgument) {
					status = http.StatusBadRequest
				}
				c.JSON(status, gin.H{"error": publicMessage(err)})
				return
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			client.unsubscribeAll()
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		client.conn = conn
		go client.writePump()
		client.readPump()
	}
}

func publicMessage(err error) string {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return "not found"
	case errors.Is(err, apperr.ErrInvalidArgument):
		return err.Error()
	case errors.Is(err, apperr.ErrBackendUnavailable):
		return "service unavailable"
	}
	return apperr.ErrPermissionDenied.Error()
}

func (c *Client) subscribe(topic string) error {
	if _, _, err := ParseTopic(topic); err != nil {
		return apperr.Invalid("%v", err)
	}
	c.mu.Lock()
	if _, ok := c.topics[topic]; ok {
		c.mu.Unlock()
		return nil
	}
	if len(c.topics) >= maxTopics {
		c.mu.Unlock()
		return apperr.Invalid("too many topics")
	}
	c.priming++
	c.mu.Unlock()

	cancel, err := c.listener.Listen(c.ctx, c.Principal, topic, func(event string, data interface{}) {
		c.enqueue(event, data)
	})
	c.mu.Lock()
	c.priming--
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		cancel()
		return nil
	}
	c.topics[topic] = cancel
	return nil
}

func (c *Client) unsubscribe(topic string) {
	c.mu.Lock()
	cancel, ok := c.topics[topic]
	delete(c.topics, topic)
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

func (c *Client) unsubscribeAll() {
	c.mu.Lock()
	c.stopped = true
	topics := c.topics
	c.topics = map[string]func(){}
	c.mu.Unlock()
	for _, cancel := range topics {
		cancel()
	}
}

// enqueue drops the connection when live updates outrun the client by sendBuffer.
func (c *Client) enqueue(event string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		c.logger.Warn("marshal realtime payload", zap.String("event", event), zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.priming == 0 && len(c.queue)-c.snapshot >= sendBuffer {
		c.logger.Warn("websocket client too slow, closing", zap.String("client_id", c.ID))
		c.closeLocked()
		return
	}
	c.queue = append(c.queue, WSMessage{Event: event, Data: raw})
	if c.priming > 0 {
		c.snapshot++
	}
	c.signal()
}

// next hands the queued messages to the writer and reports whether the client is closing.
func (c *Client) next() ([]WSMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := c.queue
	c.queue = nil
	c.snapshot = 0
	return batch, c.closed
}

func (c *Client) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Client) reply(event string, data interface{}) {
	c.enqueue(event, data)
}

func (c *Client) readPump() {
	defer func() {
		c.unsubscribeAll()
		c.mu.Lock()
		c.closeLocked()
		c.mu.Unlock()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		var req topicRequest
		switch msg.Event {
		case "subscribe":
			if err := json.Unmarshal(msg.Data, &req); err != nil || req.Topic == "" {
				c.reply(eventError, gin.H{"error": "topic required"})
				continue
			}
			if err := c.subscribe(req.Topic); err != nil {
				c.reply(eventError, gin.H{"topic": req.Topic, "error": publicMessage(err)})
				continue
			}
			c.reply(eventReady, req)
		case "unsubscribe":
			if err := json.Unmarshal(msg.Data, &req); err == nil {
				c.unsubscribe(req.Topic)
				c.reply(eventRemoved, req)
			}
		}
	}
}

func (c *Client) closeLocked() {
	if !c.closed {
		c.closed = true
		c.signal()
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.wake:
			batch, closed := c.next()
			for _, msg := range batch {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteJSON(msg); err != nil {
					return
				}
			}
			if closed {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
