// Package websocket is the connection gateway: it owns the live connections,
// maps each to its room and role, and routes inbound protocol events to the
// right session actor.
package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/protocol"
	"live-quiz-service/internal/registry"
)

const createGameTimeout = 5 * time.Second

type ClientMessage struct {
	Client  *Client
	Message protocol.Message
}

type Hub struct {
	registry *registry.Registry

	Register      chan *Client
	Unregister    chan *Client
	HandleMessage chan *ClientMessage
}

func NewHub(reg *registry.Registry) *Hub {
	return &Hub{
		registry:      reg,
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		HandleMessage: make(chan *ClientMessage),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			log.Debug().Str("conn_id", client.ConnID()).Msg("client connected")

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case clientMsg := <-h.HandleMessage:
			h.handleClientMessage(clientMsg)
		}
	}
}

func (h *Hub) unregisterClient(client *Client) {
	if client.RoomID != "" {
		if room, err := h.registry.Resolve(client.RoomID); err == nil {
			room.Leave(client.ConnID())
		}
	}
	client.close()
	log.Debug().Str("conn_id", client.ConnID()).Str("room_id", client.RoomID).Msg("client disconnected")
}

func (h *Hub) handleClientMessage(clientMsg *ClientMessage) {
	client := clientMsg.Client
	msg := clientMsg.Message

	log.Debug().
		Str("event", string(msg.Type)).
		Str("conn_id", client.ConnID()).
		Str("room_id", client.RoomID).
		Msg("client event")

	switch msg.Type {
	case protocol.EventCreateGame:
		h.handleCreateGame(client, msg.Payload)

	case protocol.EventHostJoin:
		h.handleHostJoin(client, msg.Payload)

	case protocol.EventJoinGame:
		h.handleJoinGame(client, msg.Payload)

	case protocol.EventStartGame:
		var p protocol.StartGamePayload
		h.handleHostCommand(client, msg.Payload, &p, func() error {
			room, err := h.registry.Resolve(p.RoomID)
			if err != nil {
				return err
			}
			return room.Start(client.ConnID())
		})

	case protocol.EventSubmitAnswer:
		h.handleSubmitAnswer(client, msg.Payload)

	case protocol.EventShowResults:
		var p protocol.ShowResultsPayload
		h.handleHostCommand(client, msg.Payload, &p, func() error {
			room, err := h.registry.Resolve(p.RoomID)
			if err != nil {
				return err
			}
			return room.ShowResults(client.ConnID())
		})

	case protocol.EventNextQuestion:
		var p protocol.NextQuestionPayload
		h.handleHostCommand(client, msg.Payload, &p, func() error {
			room, err := h.registry.Resolve(p.RoomID)
			if err != nil {
				return err
			}
			return room.Next(client.ConnID())
		})

	default:
		client.SendError("Unknown event type: " + string(msg.Type))
	}
}

func (h *Hub) handleCreateGame(client *Client, payload json.RawMessage) {
	var p protocol.CreateGamePayload
	if !decodePayload(client, payload, &p) {
		return
	}

	// Create reads the catalog and writes the session row; keep the hub loop
	// free while it runs. No room state is touched before the reply.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), createGameTimeout)
		defer cancel()

		roomID, hostToken, err := h.registry.Create(ctx, p.QuizID)
		if err != nil {
			client.SendError(err.Error())
			return
		}

		client.Send(protocol.Outgoing{
			Type:    protocol.EventGameCreated,
			Payload: protocol.GameCreatedPayload{RoomID: roomID, HostToken: hostToken},
		})
	}()
}

func (h *Hub) handleHostJoin(client *Client, payload json.RawMessage) {
	var p protocol.HostJoinPayload
	if !decodePayload(client, payload, &p) {
		return
	}

	room, err := h.registry.Resolve(p.RoomID)
	if err != nil {
		client.SendError(err.Error())
		return
	}
	if h.boundElsewhere(client, room.ID()) {
		return
	}

	if err := room.BindHost(client, p.HostToken); err != nil {
		client.SendError(err.Error())
		return
	}

	client.RoomID = room.ID()
	client.Role = RoleHost
}

func (h *Hub) handleJoinGame(client *Client, payload json.RawMessage) {
	var p protocol.JoinGamePayload
	if !decodePayload(client, payload, &p) {
		return
	}

	room, err := h.registry.Resolve(p.RoomID)
	if err != nil {
		client.SendError(err.Error())
		return
	}
	if h.boundElsewhere(client, room.ID()) {
		return
	}

	if err := room.Join(client, p.Name); err != nil {
		client.SendError(err.Error())
		return
	}

	client.RoomID = room.ID()
	client.Role = RolePlayer
	client.Name = p.Name
}

func (h *Hub) handleSubmitAnswer(client *Client, payload json.RawMessage) {
	var p protocol.SubmitAnswerPayload
	if !decodePayload(client, payload, &p) {
		return
	}

	room, err := h.registry.Resolve(p.RoomID)
	if err != nil {
		client.SendError(err.Error())
		return
	}

	if err := room.Submit(client.ConnID(), p.AnswerIndex); err != nil {
		client.SendError(err.Error())
	}
}

func (h *Hub) handleHostCommand(client *Client, payload json.RawMessage, into any, run func() error) {
	if !decodePayload(client, payload, into) {
		return
	}
	if err := run(); err != nil {
		client.SendError(err.Error())
	}
}

// boundElsewhere enforces one room per connection. A second binding would
// leave the first room holding a sender that dies with this connection, and
// disconnect cleanup only reaches the room the client is bound to.
func (h *Hub) boundElsewhere(client *Client, roomID string) bool {
	if client.RoomID == "" || client.RoomID == roomID {
		return false
	}
	client.SendError("Connection is already bound to room " + client.RoomID)
	return true
}

func decodePayload(client *Client, payload json.RawMessage, into any) bool {
	if len(payload) == 0 {
		client.SendError("Missing event payload")
		return false
	}
	if err := json.Unmarshal(payload, into); err != nil {
		client.SendError("Invalid event payload")
		return false
	}
	return true
}
