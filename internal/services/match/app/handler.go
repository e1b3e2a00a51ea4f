package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	apperrors "github.com/louisbranch/duelhall/internal/platform/errors"
	"github.com/louisbranch/duelhall/internal/platform/errors/i18n"
	"github.com/louisbranch/duelhall/internal/services/match/coordinator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/websocket"
)

// Inbound frame types; ack is the only outbound type not owned by the
// coordinator.
const (
	frameUsername   = "username"
	frameCreateRoom = "createRoom"
	frameJoinRoom   = "joinRoom"
	frameMove       = "move"
	frameCloseRoom  = "closeRoom"
	frameAck        = "ack"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFrameBytes          = maxFramePayloadBytes + 4*1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3
)

var tracer = otel.Tracer("github.com/louisbranch/duelhall/internal/services/match/app")

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type roomPayload struct {
	RoomID string `json:"roomId"`
}

type movePayload struct {
	Move json.RawMessage `json:"move"`
	Room string          `json:"room"`
}

// joinError is the ack payload of a rejected joinRoom.
type joinError struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type statsResponse struct {
	coordinator.Stats
	Connections int `json:"connections"`
}

// matchService binds the coordinator to its WebSocket transport.
type matchService struct {
	coordinator *coordinator.Coordinator
	transport   *wsTransport
}

func newMatchService(sendBuffer int, opts coordinator.Options) *matchService {
	transport := newWSTransport(sendBuffer)
	return &matchService{
		coordinator: coordinator.New(transport, opts),
		transport:   transport,
	}
}

// NewHandler creates match routes around a fresh, permissive coordinator.
func NewHandler() http.Handler {
	return newHandler(newMatchService(defaultSendBuffer, coordinator.Options{}))
}

func newHandler(service *matchService) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(statsResponse{
			Stats:       service.coordinator.Stats(),
			Connections: service.transport.connections(),
		})
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, service)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})

	return mux
}

// wsConnState is the per-connection read-side state.
type wsConnState struct {
	peer    *wsPeer
	catalog *i18n.Catalog
}

func handleWSConn(conn *websocket.Conn, service *matchService) {
	defer func() {
		_ = conn.Close()
	}()
	conn.MaxPayloadBytes = maxFrameBytes

	peer, err := service.transport.register(conn)
	if err != nil {
		log.Printf("match: register connection remote=%s: %v", conn.Request().RemoteAddr, err)
		return
	}
	defer func() {
		service.coordinator.Disconnect(peer.id)
		service.transport.unregister(peer.id)
	}()

	ctx := context.Background()
	state := &wsConnState{peer: peer, catalog: i18n.ForAcceptLanguage("")}
	if request := conn.Request(); request != nil {
		ctx = request.Context()
		state.catalog = i18n.ForAcceptLanguage(request.Header.Get("Accept-Language"))
	}

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			if errors.Is(err, websocket.ErrFrameTooLarge) {
				log.Printf("match: oversized frame ignored conn=%q", peer.id)
				continue
			}
			if !errors.Is(err, io.EOF) && !peer.closed() {
				log.Printf("match: read frame conn=%q: %v", peer.id, err)
			}
			return
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			log.Printf("match: rate limit exceeded conn=%q, closing connection", peer.id)
			return
		}

		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			decodeErrors++
			log.Printf("match: invalid frame conn=%q errors=%d: %v", peer.id, decodeErrors, err)
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			log.Printf("match: payload too large conn=%q type=%q bytes=%d", peer.id, frame.Type, len(frame.Payload))
			continue
		}

		dispatchFrame(ctx, service, state, frame)
	}
}

func dispatchFrame(ctx context.Context, service *matchService, state *wsConnState, frame wsFrame) {
	_, span := tracer.Start(ctx, "match.frame", trace.WithAttributes(
		attribute.String("match.frame.type", frame.Type),
		attribute.String("match.conn.id", string(state.peer.id)),
	))
	defer span.End()

	switch frame.Type {
	case frameUsername:
		handleUsernameFrame(service, state, frame)
	case frameCreateRoom:
		handleCreateRoomFrame(service, state, frame)
	case frameJoinRoom:
		handleJoinRoomFrame(service, state, frame, span)
	case frameMove:
		handleMoveFrame(service, state, frame)
	case frameCloseRoom:
		handleCloseRoomFrame(service, state, frame)
	default:
		log.Printf("match: unsupported frame type conn=%q type=%q", state.peer.id, frame.Type)
	}
}

func handleUsernameFrame(service *matchService, state *wsConnState, frame wsFrame) {
	var username string
	if err := json.Unmarshal(frame.Payload, &username); err != nil {
		log.Printf("match: invalid username payload conn=%q: %v", state.peer.id, err)
		return
	}
	service.coordinator.AnnounceIdentity(state.peer.id, username)
}

func handleCreateRoomFrame(service *matchService, state *wsConnState, frame wsFrame) {
	roomID := service.coordinator.CreateSession(state.peer.id)
	service.transport.reply(state.peer.id, frame.RequestID, roomID)
}

func handleJoinRoomFrame(service *matchService, state *wsConnState, frame wsFrame, span trace.Span) {
	var payload roomPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		log.Printf("match: invalid joinRoom payload conn=%q: %v", state.peer.id, err)
		return
	}
	span.SetAttributes(attribute.String("match.room.id", payload.RoomID))

	snapshot, err := service.coordinator.JoinSession(state.peer.id, payload.RoomID)
	if err != nil {
		code := apperrors.CodeOf(err)
		span.SetAttributes(
			attribute.String("match.error.code", string(code)),
			attribute.String("match.error.status", code.GRPCCode().String()),
		)
		service.transport.reply(state.peer.id, frame.RequestID, joinError{
			Error:   true,
			Message: state.catalog.Format(string(code), nil),
			Code:    string(code),
		})
		return
	}
	service.transport.reply(state.peer.id, frame.RequestID, snapshot)
}

func handleMoveFrame(service *matchService, state *wsConnState, frame wsFrame) {
	var payload movePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		log.Printf("match: invalid move payload conn=%q: %v", state.peer.id, err)
		return
	}
	service.coordinator.RelayMove(state.peer.id, payload.Room, payload.Move)
}

func handleCloseRoomFrame(service *matchService, state *wsConnState, frame wsFrame) {
	var payload roomPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		log.Printf("match: invalid closeRoom payload conn=%q: %v", state.peer.id, err)
		return
	}
	service.coordinator.CloseSession(state.peer.id, payload.RoomID)
}
