package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/benbeisheim/unionchess-backend/internal/model"
	"github.com/benbeisheim/unionchess-backend/internal/reconcile"
	"github.com/benbeisheim/unionchess-backend/internal/rules"
	"github.com/benbeisheim/unionchess-backend/internal/service"
	"github.com/benbeisheim/unionchess-backend/internal/ws"
)

type testServer struct {
	app *fiber.App
	ms  *service.MatchService
	wsc *WebSocketController
}

func newTestServer(t *testing.T) *testServer {
	logger := zaptest.NewLogger(t)
	manager := service.NewMatchManager(service.ManagerConfig{Logger: logger})
	ms := service.NewMatchService(manager, model.Settings{Options: rules.DefaultOptions(), TimeoutRule: model.TimeoutLoses})
	mc := NewMatchController(ms, logger)
	wsc := NewWebSocketController(ms, logger)

	app := fiber.New()
	RegisterRoutes(app, mc, wsc, nil)
	return &testServer{app: app, ms: ms, wsc: wsc}
}

func (s *testServer) do(t *testing.T, method, target, party, body string) (int, map[string]json.RawMessage) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if party != "" {
		req.Header.Set("X-Party-ID", party)
	}
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]json.RawMessage
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp.StatusCode, out
}

func (s *testServer) create(t *testing.T, body string) string {
	t.Helper()
	status, out := s.do(t, http.MethodPost, "/api/match", "alice", body)
	require.Equal(t, fiber.StatusCreated, status)
	var key string
	require.NoError(t, json.Unmarshal(out["key"], &key))
	return key
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestMatchLifecycle(t *testing.T) {
	s := newTestServer(t)
	key := s.create(t, `{"chainRule":"optional"}`)

	status, _ := s.do(t, http.MethodPost, "/api/match/"+key+"/claim/white", "alice", `{"name":"Alice","avatar":"fox"}`)
	require.Equal(t, fiber.StatusOK, status)

	status, out := s.do(t, http.MethodPost, "/api/match/"+key+"/action", "alice", `{"base":0,"action":{"kind":"lift","square":"e2"}}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 1, decode[int](t, out["length"]))

	status, out = s.do(t, http.MethodPost, "/api/match/"+key+"/action", "alice", `{"base":1,"action":{"kind":"place","square":"e4"}}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 2, decode[int](t, out["length"]))

	status, out = s.do(t, http.MethodGet, "/api/match/"+key, "bob", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, decode[[]rules.Action](t, out["actions"]), 2)
	assert.Equal(t, rules.Black, decode[rules.Color](t, out["sideToMove"]))
	locks := decode[reconcile.Locks](t, out["locks"])
	assert.Equal(t, reconcile.LockedByRemoteParty, locks.White)
	assert.Equal(t, reconcile.Unlocked, locks.Black)
	profiles := decode[ws.Profiles](t, out["profiles"])
	assert.Equal(t, "Alice", profiles.White.Name)

	status, out = s.do(t, http.MethodGet, "/api/match/"+key+"/compact", "bob", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b 1 AHah e3 -", decode[string](t, out["notation"]))
	assert.Equal(t, 2, decode[int](t, out["length"]))
}

func TestSubmitActionErrors(t *testing.T) {
	s := newTestServer(t)
	key := s.create(t, "")
	status, _ := s.do(t, http.MethodPost, "/api/match/"+key+"/action", "alice", `{"base":0,"action":{"kind":"lift","square":"e2"}}`)
	require.Equal(t, fiber.StatusOK, status)

	tests := []struct {
		name   string
		party  string
		body   string
		status int
	}{
		{"illegal", "alice", `{"base":1,"action":{"kind":"place","square":"e5"}}`, fiber.StatusUnprocessableEntity},
		{"locked", "mallory", `{"base":1,"action":{"kind":"place","square":"e4"}}`, fiber.StatusForbidden},
		{"stale", "alice", `{"base":0,"action":{"kind":"lift","square":"d2"}}`, fiber.StatusConflict},
		{"bad json", "alice", `{"base":`, fiber.StatusBadRequest},
		{"unknown kind", "alice", `{"base":1,"action":{"kind":"jump","square":"e4"}}`, fiber.StatusBadRequest},
		{"missing action", "alice", `{"base":1}`, fiber.StatusBadRequest},
		{"empty body", "alice", "", fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, out := s.do(t, http.MethodPost, "/api/match/"+key+"/action", tt.party, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Contains(t, out, "error")
		})
	}

	_, out := s.do(t, http.MethodPost, "/api/match/"+key+"/action", "alice", `{"base":1,"action":{"kind":"place","square":"e5"}}`)
	assert.Equal(t, string(rules.ReasonUnreachable), decode[string](t, out["reason"]))

	_, out = s.do(t, http.MethodPost, "/api/match/"+key+"/action", "alice", `{"base":0,"action":{"kind":"lift","square":"d2"}}`)
	state := decode[ws.MatchState](t, out["state"])
	assert.True(t, state.Rollback)
	assert.Len(t, state.Actions, 1)

	status, _ = s.do(t, http.MethodPost, "/api/match/missing/action", "alice", `{"base":0,"action":{"kind":"lift","square":"e2"}}`)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = s.do(t, http.MethodGet, "/api/match/"+key, "", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestRollbackEndpoint(t *testing.T) {
	s := newTestServer(t)
	key := s.create(t, "")

	status, _ := s.do(t, http.MethodPost, "/api/match/"+key+"/rollback", "alice", "")
	assert.Equal(t, fiber.StatusConflict, status)

	s.do(t, http.MethodPost, "/api/match/"+key+"/action", "alice", `{"base":0,"action":{"kind":"lift","square":"b1"}}`)
	status, out := s.do(t, http.MethodPost, "/api/match/"+key+"/rollback", "alice", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 0, decode[int](t, out["length"]))
}

func TestClaimAndDelegate(t *testing.T) {
	s := newTestServer(t)
	key := s.create(t, "")

	status, _ := s.do(t, http.MethodPost, "/api/match/"+key+"/claim/purple", "alice", "")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodPost, "/api/match/"+key+"/delegate/black", "alice", `{"modelName":"hedwig","modelStrength":4}`)
	require.Equal(t, fiber.StatusOK, status)

	status, _ = s.do(t, http.MethodPost, "/api/match/"+key+"/claim/black", "bob", "")
	assert.Equal(t, fiber.StatusForbidden, status)

	_, out := s.do(t, http.MethodGet, "/api/match/"+key, "alice", "")
	locks := decode[reconcile.Locks](t, out["locks"])
	assert.Equal(t, reconcile.LockedByLocalFrontendAI, locks.Black)
	profiles := decode[ws.Profiles](t, out["profiles"])
	require.NotNil(t, profiles.Black.AI)
	assert.Equal(t, 4, profiles.Black.AI.Strength)
}

func TestReleaseSide(t *testing.T) {
	s := newTestServer(t)
	key := s.create(t, "")

	status, _ := s.do(t, http.MethodPost, "/api/match/"+key+"/claim/white", "alice", `{"name":"Alice"}`)
	require.Equal(t, fiber.StatusOK, status)
	_, out := s.do(t, http.MethodGet, "/api/match/"+key, "bob", "")
	assert.Equal(t, reconcile.LockedByRemoteParty, decode[reconcile.Locks](t, out["locks"]).White)

	status, _ = s.do(t, http.MethodPost, "/api/match/"+key+"/release/white", "bob", "")
	assert.Equal(t, fiber.StatusForbidden, status)
	status, _ = s.do(t, http.MethodPost, "/api/match/"+key+"/release/white", "alice", "")
	require.Equal(t, fiber.StatusOK, status)

	_, out = s.do(t, http.MethodGet, "/api/match/"+key, "bob", "")
	locks := decode[reconcile.Locks](t, out["locks"])
	assert.Equal(t, reconcile.Unlocked, locks.White)
	assert.Equal(t, reconcile.Unlocked, locks.Black)

	status, _ = s.do(t, http.MethodPost, "/api/match/"+key+"/claim/white", "bob", "")
	assert.Equal(t, fiber.StatusOK, status)
}

func TestCreateMatchValidation(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodPost, "/api/match", "alice", `{"timer":{"whiteSeconds":0,"blackSeconds":60}}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	status, _ = s.do(t, http.MethodPost, "/api/match", "alice", `{"chainRule":"sometimes"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, out := s.do(t, http.MethodPost, "/api/match", "alice", `{"timer":{"whiteSeconds":60,"blackSeconds":60}}`)
	require.Equal(t, fiber.StatusCreated, status)
	state := decode[ws.MatchState](t, out["state"])
	require.NotNil(t, state.Timer)
	assert.Equal(t, 60.0, state.Timer.WhiteSeconds)
	assert.Equal(t, model.Lightspeed, state.Tempo)
}

func TestLegalActionsEndpoint(t *testing.T) {
	s := newTestServer(t)

	status, out := s.do(t, http.MethodPost, "/api/position/legal", "", `{"notation":"`+rules.StartNotation+`"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, decode[[]rules.Action](t, out["actions"]), 10)

	status, _ = s.do(t, http.MethodPost, "/api/position/legal", "", `{"notation":"8/8 w"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

type recordingConn struct {
	mu   sync.Mutex
	msgs []ws.Message
}

func (c *recordingConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, v.(ws.Message))
	return nil
}

func (c *recordingConn) last() ws.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msgs[len(c.msgs)-1]
}

func TestWebSocketMessages(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	key := s.create(t, "")
	conn := &recordingConn{}
	sess := &session{key: key, party: "alice", conn: conn}

	doAction := func(base int, action string) ws.Message {
		return ws.Message{Type: ws.MessageTypeDoAction, Payload: json.RawMessage(fmt.Sprintf(`{"base":%d,"action":%s}`, base, action))}
	}

	require.NoError(t, s.wsc.handleMessage(ctx, sess, ws.Message{Type: ws.MessageTypeGetState}))
	assert.False(t, decode[ws.MatchState](t, conn.last().Payload).Rollback)

	require.NoError(t, s.wsc.handleMessage(ctx, sess, doAction(0, `{"kind":"lift","square":"e2"}`)))

	// A stale action resends the authoritative history instead of failing.
	require.NoError(t, s.wsc.handleMessage(ctx, sess, doAction(0, `{"kind":"lift","square":"d2"}`)))
	state := decode[ws.MatchState](t, conn.last().Payload)
	assert.True(t, state.Rollback)
	assert.Len(t, state.Actions, 1)

	err := s.wsc.handleMessage(ctx, sess, doAction(1, `{"kind":"place","square":"e6"}`))
	assert.ErrorIs(t, err, rules.ErrIllegalAction)

	require.NoError(t, s.wsc.handleMessage(ctx, sess, ws.Message{Type: ws.MessageTypeRollback}))
	assert.Error(t, s.wsc.handleMessage(ctx, sess, ws.Message{Type: "resign"}))

	s.wsc.sendError(conn, err)
	msg := conn.last()
	assert.Equal(t, ws.MessageTypeError, msg.Type)
	assert.Contains(t, decode[ws.ErrorPayload](t, msg.Payload).Error, "not reachable")
}
