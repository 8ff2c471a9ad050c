package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exlab-backend/internal/engine"
	"github.com/stemsi/exlab-backend/internal/middleware"
	"github.com/stemsi/exlab-backend/internal/model"
	"github.com/stemsi/exlab-backend/internal/response"
	"github.com/stemsi/exlab-backend/internal/service"
	ws "github.com/stemsi/exlab-backend/internal/websocket"
)

const actionTimeout = 10 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a running session to the participant.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/participant/sessions/:id/stream?token=
// Pushes the countdown's popup and expiry events and accepts answer,
// reaction, submit and ping actions.
func (h *WSHandler) SessionStream(c *gin.Context) {
	p, ok := middleware.GetParticipant(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Str("run_id", p.RunID.String()).
		Int("session_id", sessionID).
		Logger()

	snap, events, unsubscribe, done, err := h.attemptService.Subscribe(c.Request.Context(), p, sessionID)
	if err != nil {
		_, code := flowStatus(err)
		_ = conn.WriteError(string(code), response.GetMessage(code))
		_ = conn.WriteClose(string(code))
		return
	}
	defer unsubscribe()

	if err := conn.WriteTyped(ws.StateResponse{Event: ws.EventState, Data: snap}); err != nil {
		return
	}
	wsLog.Info().Msg("Participant connected")

	quit := make(chan struct{})
	defer close(quit)
	go h.pump(conn, events, done, quit)

	for {
		var msg json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			_ = conn.WriteError(string(response.ErrInvalidPayload), "malformed message")
			continue
		}

		switch env.Action {
		case ws.ActionAnswer:
			h.handleAnswer(conn, p, sessionID, msg)
		case ws.ActionReaction:
			h.handleReaction(conn, p, sessionID, msg)
		case ws.ActionSubmit:
			h.handleSubmit(conn, wsLog, p, sessionID)
		case ws.ActionPing:
			_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			_ = conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(env.Action))
		}
	}
}

// pump forwards driver events until the driver exits or the reader quits.
// Once the driver is done the buffered events are flushed and the
// connection is closed normally.
func (h *WSHandler) pump(conn *ws.Conn, events <-chan engine.Event, done <-chan struct{}, quit <-chan struct{}) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteTyped(ev); err != nil {
				return
			}
		case <-done:
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return
					}
					if err := conn.WriteTyped(ev); err != nil {
						return
					}
				default:
					_ = conn.WriteClose("session finished")
					return
				}
			}
		case <-quit:
			return
		}
	}
}

func (h *WSHandler) handleAnswer(conn *ws.Conn, p service.Participant, sessionID int, msg json.RawMessage) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(msg, &req); err != nil || req.QuestionID == "" || req.Answer == "" {
		_ = conn.WriteError(string(response.ErrInvalidPayload), "question_id and answer are required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()
	err := h.attemptService.Answer(ctx, p, sessionID, &model.AnswerRequest{QuestionID: req.QuestionID, Answer: req.Answer})
	if err != nil {
		writeFlowError(conn, err)
	}
}

func (h *WSHandler) handleReaction(conn *ws.Conn, p service.Participant, sessionID int, msg json.RawMessage) {
	var req ws.ReactionRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		_ = conn.WriteError(string(response.ErrInvalidPayload), "malformed reaction")
		return
	}
	reaction := model.PopupReaction(req.Reaction)
	if reaction != model.ReactionYes && reaction != model.ReactionNo {
		_ = conn.WriteError(string(response.ErrInvalidPayload), "reaction must be yes or no")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()
	if err := h.attemptService.React(ctx, p, sessionID, req.PopupID, reaction); err != nil {
		writeFlowError(conn, err)
	}
}

// handleSubmit grades and saves the attempt. A fresh submission reaches
// the client through the driver's submitted event, so only a repeated
// submit is answered here.
func (h *WSHandler) handleSubmit(conn *ws.Conn, wsLog zerolog.Logger, p service.Participant, sessionID int) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	res, err := h.attemptService.Submit(ctx, p, sessionID)
	if err != nil {
		if !errors.Is(err, engine.ErrSubmitInProgress) {
			wsLog.Error().Err(err).Msg("Submit failed")
		}
		writeFlowError(conn, err)
		return
	}
	if res.AlreadySaved {
		_ = conn.WriteTyped(ws.SubmittedResponse{Event: ws.EventSubmitted, Data: res})
	}
}

func writeFlowError(conn *ws.Conn, err error) {
	_, code := flowStatus(err)
	_ = conn.WriteError(string(code), response.GetMessage(code))
}
