package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/benbeisheim/unionchess-backend/internal/middleware"
	"github.com/benbeisheim/unionchess-backend/internal/model"
	"github.com/benbeisheim/unionchess-backend/internal/service"
	"github.com/benbeisheim/unionchess-backend/internal/ws"
)

type WebSocketController struct {
	matchService *service.MatchService
	logger       *zap.Logger
}

func NewWebSocketController(matchService *service.MatchService, logger *zap.Logger) *WebSocketController {
	return &WebSocketController{
		matchService: matchService,
		logger:       logger,
	}
}

// lockedConn serializes writes from the read loop and from broadcasts.
type lockedConn struct {
	mu   sync.Mutex
	conn service.Conn
}

func (l *lockedConn) WriteJSON(v interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteJSON(v)
}

// session is one subscriber's view of a match.
type session struct {
	key     string
	party   string
	compact bool
	conn    service.Conn
}

// HandleConnection is called when a new WebSocket connection is established
func (wsc *WebSocketController) HandleConnection(c *websocket.Conn) {
	party, _ := c.Locals(middleware.PartyIDKey).(string)
	s := &session{
		key:     c.Params("key"),
		party:   party,
		compact: c.Query("compact") == "true",
		conn:    &lockedConn{conn: c},
	}
	log := wsc.logger.With(zap.String("match", s.key), zap.String("party", s.party))
	ctx := context.Background()

	unsubscribe, err := wsc.matchService.Subscribe(ctx, s.key, s.party, s.conn, s.compact)
	if err != nil {
		log.Warn("failed to subscribe", zap.Error(err))
		wsc.sendError(s.conn, err)
		c.Close()
		return
	}
	defer unsubscribe()
	log.Debug("websocket connected")

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			log.Debug("websocket closed", zap.Error(err))
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg ws.Message
		if err := json.Unmarshal(message, &msg); err != nil {
			wsc.sendError(s.conn, fmt.Errorf("parse message: %w", err))
			continue
		}
		if err := wsc.handleMessage(ctx, s, msg); err != nil {
			log.Debug("message rejected", zap.String("type", string(msg.Type)), zap.Error(err))
			wsc.sendError(s.conn, err)
		}
	}
}

// handleMessage dispatches one client message. A stale action is not an
// error for the client: it gets the current history flagged as a rollback.
func (wsc *WebSocketController) handleMessage(ctx context.Context, s *session, msg ws.Message) error {
	switch msg.Type {
	case ws.MessageTypeGetState:
		return wsc.matchService.SendState(ctx, s.key, s.party, s.conn, s.compact, false)

	case ws.MessageTypeDoAction:
		var payload ws.DoActionPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("parse doAction: %w", err)
		}
		_, err := wsc.matchService.SubmitAction(ctx, s.key, s.party, payload.Base, payload.Action)
		if errors.Is(err, model.ErrOutOfDate) {
			return wsc.matchService.SendState(ctx, s.key, s.party, s.conn, s.compact, true)
		}
		return err

	case ws.MessageTypeRollback:
		_, err := wsc.matchService.Rollback(ctx, s.key, s.party)
		return err

	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

// Helper method to send error messages
func (wsc *WebSocketController) sendError(conn service.Conn, err error) {
	msg, encErr := ws.Encode(ws.MessageTypeError, ws.ErrorPayload{Error: err.Error()})
	if encErr != nil {
		return
	}
	if werr := conn.WriteJSON(msg); werr != nil {
		wsc.logger.Debug("failed to send error", zap.Error(werr))
	}
}
