// Package ws provides the WebSocket transport for observer connections.
package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/petrel-net/petrel/internal/config"
	"github.com/petrel-net/petrel/internal/domain"
	"github.com/petrel-net/petrel/internal/hub"
	"github.com/petrel-net/petrel/internal/protocol"
)

var (
	// ErrBufferFull means the connection's outbound buffer is full. It
	// counts as a send failure and disconnects the observer.
	ErrBufferFull = errors.New("send buffer full")
	// ErrConnectionClosed means the connection was already torn down.
	ErrConnectionClosed = errors.New("connection closed")
)

// StateFunc produces the state_sync payload sent right after connect.
type StateFunc func() map[string]any

// Toucher refreshes a liveness record from transport-level activity. An
// agent's control pings count as heartbeats.
type Toucher interface {
	Touch(entityID string, kind domain.EntityKind) bool
}

// Server handles WebSocket upgrades and connection lifecycles.
type Server struct {
	cfg         *config.Config
	registry    *hub.Registry
	broadcaster *hub.Broadcaster
	state       StateFunc
	liveness    Toucher
	upgrader    websocket.Upgrader
	log         zerolog.Logger
}

// NewServer creates a WebSocket server over the hub. liveness may be nil;
// agent pings then carry no heartbeat side effect.
func NewServer(cfg *config.Config, registry *hub.Registry, b *hub.Broadcaster, state StateFunc, liveness Toucher, log zerolog.Logger) *Server {
	return &Server{
		cfg:         cfg,
		registry:    registry,
		broadcaster: b,
		state:       state,
		liveness:    liveness,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: log.With().Str("component", "ws").Logger(),
	}
}

// conn adapts one websocket to hub.Sender. Send enqueues without blocking;
// the write pump is the only goroutine that touches the socket for writes.
type conn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// Send implements hub.Sender.
func (c *conn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// HandleWebSocket upgrades the request and runs the connection lifecycle.
func (s *Server) HandleWebSocket(ec echo.Context) error {
	ws, err := s.upgrader.Upgrade(ec.Response(), ec.Request(), nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return err
	}

	clientID := uuid.New().String()
	c := &conn{
		ws:   ws,
		send: make(chan []byte, s.cfg.SendBufferSize),
		done: make(chan struct{}),
	}
	s.registry.Connect(clientID, c)

	// Optional agent routing and initial channel subscriptions come from
	// the query string.
	agentID := ec.QueryParam("agent_id")
	if agentID != "" {
		s.registry.RegisterAgentRoute(agentID, clientID)
	}
	channels := s.cfg.DefaultChannels
	if raw := ec.QueryParam("channels"); raw != "" {
		channels = nil
		for _, ch := range strings.Split(raw, ",") {
			if ch = strings.TrimSpace(ch); ch != "" {
				channels = append(channels, ch)
			}
		}
	}
	for _, ch := range channels {
		s.registry.Subscribe(clientID, ch)
	}

	go s.writePump(clientID, c)
	go s.readPump(clientID, agentID, c)

	s.broadcaster.SendToConnection(clientID, protocol.Event(protocol.TypeConnected, map[string]any{
		"client_id": clientID,
		"channels":  channels,
	}))
	if s.state != nil {
		s.broadcaster.SendToConnection(clientID, protocol.Event(protocol.TypeStateSync, map[string]any{
			"data": s.state(),
		}))
	}
	return nil
}

func (s *Server) readPump(clientID, agentID string, c *conn) {
	defer func() {
		s.registry.Disconnect(clientID)
		c.close()
	}()

	c.ws.SetReadLimit(s.cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	limiter := rate.NewLimiter(rate.Limit(s.cfg.InboundRate), s.cfg.InboundBurst)

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Warn().Err(err).Str("client_id", clientID).Msg("websocket read error")
			}
			return
		}
		if !limiter.Allow() {
			// Drop the message; a flooding client loses messages, not
			// the connection.
			continue
		}
		s.handleMessage(clientID, agentID, message)
	}
}

func (s *Server) writePump(clientID string, c *conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.registry.Disconnect(clientID)
		c.close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				s.log.Warn().Err(err).Str("client_id", clientID).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one inbound control message. agentID is the
// agent this connection registered as, empty for plain observers.
func (s *Server) handleMessage(clientID, agentID string, data []byte) {
	var msg protocol.ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.broadcaster.SendToConnection(clientID, protocol.ErrorEvent("invalid JSON"))
		return
	}

	switch msg.Type {
	case protocol.TypeSubscribe:
		if msg.Channel != "" {
			s.registry.Subscribe(clientID, msg.Channel)
			s.broadcaster.SendToConnection(clientID, protocol.Event(protocol.TypeSubscribed, map[string]any{
				"channel": msg.Channel,
			}))
		}
	case protocol.TypeUnsubscribe:
		if msg.Channel != "" {
			s.registry.Unsubscribe(clientID, msg.Channel)
			s.broadcaster.SendToConnection(clientID, protocol.Event(protocol.TypeUnsubscribed, map[string]any{
				"channel": msg.Channel,
			}))
		}
	case protocol.TypePing:
		if agentID != "" && s.liveness != nil {
			s.liveness.Touch(agentID, domain.KindAgent)
		}
		s.broadcaster.SendToConnection(clientID, protocol.Event(protocol.TypePong, nil))
	case protocol.TypeAgentCommand:
		if msg.AgentID == "" || len(msg.Command) == 0 {
			s.broadcaster.SendToConnection(clientID, protocol.ErrorEvent("agent_id and command are required"))
			return
		}
		ok := s.broadcaster.SendToAgent(msg.AgentID, protocol.Event(protocol.TypeCommand, map[string]any{
			"agent_id":    msg.AgentID,
			"command":     json.RawMessage(msg.Command),
			"from_client": clientID,
		}))
		if !ok {
			s.broadcaster.SendToConnection(clientID, protocol.ErrorEvent("agent not reachable: "+msg.AgentID))
		}
	default:
		s.broadcaster.SendToConnection(clientID, protocol.ErrorEvent("unknown message type: "+msg.Type))
	}
}
