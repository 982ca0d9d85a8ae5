package web

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"roadlink/domain"
	"roadlink/errors"
	"roadlink/runtime"
	"roadlink/services"
)

type WebSocketConfig struct {
	MaxMessageSize int64
	PongWait       time.Duration
	PingInterval   time.Duration
	WriteWait      time.Duration
}

func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		MaxMessageSize: 4096,
		PongWait:       60 * time.Second,
		PingInterval:   54 * time.Second,
		WriteWait:      10 * time.Second,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades connections and binds each one to a chat session.
// The session's delivery channel feeds the write pump; the read pump
// turns inbound frames into chat service calls.
type WSHandler struct {
	log  *slog.Logger
	chat *services.ChatService
	auth services.IAuthService
	cfg  WebSocketConfig
}

func NewWSHandler(log *slog.Logger, chat *services.ChatService, auth services.IAuthService, cfg WebSocketConfig) *WSHandler {
	return &WSHandler{log: log, chat: chat, auth: auth, cfg: cfg}
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	session := h.chat.OpenSession()
	client := &wsClient{
		log:     h.log.With("session", session.SID()),
		conn:    conn,
		session: session,
		chat:    h.chat,
		auth:    h.auth,
		cfg:     h.cfg,
		out:     make(chan Envelope, 16),
	}

	// A bearer token on the upgrade request authenticates immediately;
	// otherwise the client may send an auth frame later.
	if token := bearerToken(r); token != "" {
		client.authenticate(token)
	}

	go client.writePump()
	go client.readPump()
}

type wsClient struct {
	log     *slog.Logger
	conn    *websocket.Conn
	session *runtime.Session
	chat    *services.ChatService
	auth    services.IAuthService
	cfg     WebSocketConfig
	out     chan Envelope // replies and errors produced by the read pump
}

func (c *wsClient) readPump() {
	defer func() {
		c.chat.CloseSession(c.session.SID())
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("WebSocket read error", "error", err)
			}
			return
		}
		c.handleFrame(raw)
	}
}

// writePump owns all writes to the connection. It drains the session's
// delivery channel until the session dies or the peer goes away.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case e := <-c.session.Events():
			env, ok := envelopeFor(e)
			if !ok {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case env := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-c.session.Done():
			// Flush whatever the session managed to queue before dying,
			// the termination notice included.
			for {
				select {
				case e := <-c.session.Events():
					if env, ok := envelopeFor(e); ok {
						c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
						_ = c.conn.WriteJSON(env)
					}
					continue
				default:
				}
				break
			}
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) handleFrame(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.sendError(0, "bad-request", "invalid frame")
		return
	}

	switch env.Event {
	case EvtAuth:
		var frame AuthFrame
		if err := json.Unmarshal(env.Data, &frame); err != nil {
			c.sendError(0, "bad-request", "invalid auth frame")
			return
		}
		if !c.authenticate(frame.Token) {
			c.sendError(0, "unauthenticated", "invalid token")
		}

	case EvtJoinIncident:
		var frame JoinFrame
		if err := json.Unmarshal(env.Data, &frame); err != nil {
			c.sendError(0, "bad-request", "invalid join frame")
			return
		}
		c.join(frame)

	case EvtLeaveIncident:
		var frame LeaveFrame
		if err := json.Unmarshal(env.Data, &frame); err != nil {
			c.sendError(0, "bad-request", "invalid leave frame")
			return
		}
		if err := c.chat.Leave(c.session.SID(), domain.IncidentID(frame.IncidentID)); err != nil {
			c.sendError(frame.IncidentID, "room-busy", "try again")
		}

	case EvtSendMessage:
		var frame SendFrame
		if err := json.Unmarshal(env.Data, &frame); err != nil {
			c.sendError(0, "bad-request", "invalid send frame")
			return
		}
		c.send(frame)

	default:
		c.sendError(0, "bad-request", "unknown event "+env.Event)
	}
}

func (c *wsClient) authenticate(token string) bool {
	identity, err := c.auth.Verify(token)
	if err != nil {
		return false
	}
	if err := c.chat.Authenticate(c.session.SID(), identity); err != nil {
		return false
	}
	c.log.Debug("Session authenticated", "user", identity.UserID)
	return true
}

func (c *wsClient) join(frame JoinFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	incident := domain.IncidentID(frame.IncidentID)
	watermark, err := c.chat.Join(ctx, c.session.SID(), incident, frame.LastSeen)
	if err != nil {
		c.sendError(frame.IncidentID, joinErrorCode(err), err.Error())
		return
	}
	c.sendEnvelope(mustEnvelope(EvtJoined, JoinedFrame{IncidentID: frame.IncidentID, Watermark: watermark}))
}

func (c *wsClient) send(frame SendFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	incident := domain.IncidentID(frame.IncidentID)
	if _, err := c.chat.Send(ctx, c.session.SID(), incident, frame.Text); err != nil {
		c.sendError(frame.IncidentID, sendErrorCode(err), err.Error())
	}
	// The sender sees its own message through room fanout, same as everyone.
}

func joinErrorCode(err error) string {
	switch {
	case goerrors.Is(err, errors.ErrIncidentNotFound):
		return "not-found"
	case goerrors.Is(err, errors.ErrRoomInactive):
		return "room-inactive"
	case goerrors.Is(err, errors.ErrRoomBusy):
		return "room-busy"
	default:
		return "join-failed"
	}
}

func sendErrorCode(err error) string {
	var blocked *errors.BlockedError
	switch {
	case goerrors.As(err, &blocked):
		return "blocked"
	case goerrors.Is(err, errors.ErrUnauthenticated):
		return "unauthenticated"
	case goerrors.Is(err, errors.ErrRoomInactive):
		return "room-inactive"
	case goerrors.Is(err, errors.ErrRoomBusy):
		return "room-busy"
	case goerrors.Is(err, errors.ErrMessageTooLong):
		return "too-long"
	default:
		return "send-failed"
	}
}

// sendError reports a failure on the originating connection only; room
// members never see another session's errors.
func (c *wsClient) sendError(incidentID int64, code, message string) {
	c.sendEnvelope(mustEnvelope(EvtMessageError, ErrorFrame{IncidentID: incidentID, Code: code, Message: message}))
}

// sendEnvelope hands the frame to the write pump, which owns the
// connection. A full outbound queue drops the frame rather than blocking
// the read pump.
func (c *wsClient) sendEnvelope(env Envelope) {
	select {
	case c.out <- env:
	default:
		c.log.Debug("Outbound frame dropped", "event", env.Event)
	}
}
