package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/inklet-dev/inklet/internal/auth"
	"github.com/inklet-dev/inklet/internal/store"
)

// Handler upgrades /ws requests, authenticates the handshake credential,
// and runs the resulting session. Unauthenticated peers are closed with a
// policy close code before any room operation happens.
type Handler struct {
	tokens   *auth.Service
	users    store.UserStore
	rooms    Rooms
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewHandler builds the websocket endpoint. clientURL is the single
// origin allowed to connect from a browser; non-browser clients send no
// Origin header and pass.
func NewHandler(tokens *auth.Service, users store.UserStore, rooms Rooms, clientURL string, log zerolog.Logger) *Handler {
	return &Handler{
		tokens: tokens,
		users:  users,
		rooms:  rooms,
		log:    log.With().Str("component", "session").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origin == clientURL
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := auth.BearerToken(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	user, err := h.authenticate(r, token)
	if err != nil {
		h.log.Debug().Err(err).Msg("handshake rejected")
		refuse(conn, "unauthorized")
		return
	}

	s := newSession(conn, h.rooms, user, h.log)
	h.log.Info().Str("user", user.ID).Str("username", user.Username).Msg("session connected")
	s.run(r.Context())
	h.log.Info().Str("user", user.ID).Msg("session disconnected")
}

func (h *Handler) authenticate(r *http.Request, token string) (*store.User, error) {
	if token == "" {
		return nil, auth.ErrInvalidToken
	}
	userID, err := h.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	user, err := h.users.GetUserByID(r.Context(), userID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	return user, nil
}

// refuse closes a just-upgraded connection that failed authentication.
func refuse(conn *websocket.Conn, reason string) {
	deadline := time.Now().Add(writeWait)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
	conn.Close()
}

func marshalFrame(v any) ([]byte, error) {
	return json.Marshal(v)
}
