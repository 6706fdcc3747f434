package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/SwastikKasera/askleaf-livechat-server/internal/config"
	"github.com/SwastikKasera/askleaf-livechat-server/internal/domain"
	"github.com/SwastikKasera/askleaf-livechat-server/internal/hub"
	"github.com/SwastikKasera/askleaf-livechat-server/internal/service"
	"github.com/SwastikKasera/askleaf-livechat-server/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	hub     *hub.Hub
	service service.RelayService
	wsCfg   config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, svc service.RelayService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		wsCfg:   wsCfg,
	}
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l := log.Ctx(r.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)

	h.hub.Register(client)

	go client.WritePump()
	go func() {
		client.ReadPump(h.handleMessage)
		// ReadPump returns once the connection is gone; session cleanup runs
		// exactly once per connection.
		h.service.HandleDisconnect(context.Background(), client.ID)
	}()
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var envelope domain.Envelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		client.SendEvent(domain.EventError, domain.ErrorPayload{Reason: domain.ReasonInvalidPayload})
		return
	}

	ctx := context.Background()

	switch envelope.Event {
	case domain.EventCustomerJoin:
		var p domain.CustomerJoinPayload
		if err := json.Unmarshal(envelope.Data, &p); err != nil {
			client.SendEvent(domain.EventError, domain.ErrorPayload{Reason: domain.ReasonInvalidPayload})
			return
		}
		h.service.HandleCustomerJoin(ctx, client.ID, p)

	case domain.EventAgentJoin:
		var p domain.AgentJoinPayload
		if err := json.Unmarshal(envelope.Data, &p); err != nil {
			client.SendEvent(domain.EventError, domain.ErrorPayload{Reason: domain.ReasonInvalidPayload})
			return
		}
		h.service.HandleAgentJoin(ctx, client.ID, p)

	case domain.EventMessageSend:
		var p domain.SendMessagePayload
		if err := json.Unmarshal(envelope.Data, &p); err != nil {
			client.SendEvent(domain.EventError, domain.ErrorPayload{Reason: domain.ReasonInvalidPayload})
			return
		}
		h.service.HandleMessage(ctx, client.ID, p)

	default:
		client.SendEvent(domain.EventError, domain.ErrorPayload{Reason: domain.ReasonInvalidPayload})
	}
}

func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleWebSocket)
}
