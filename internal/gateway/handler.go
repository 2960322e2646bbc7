package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/joshuahaertel/friendexing/internal/game"
)

// WebSocketHandler upgrades participant connections and pushes the
// connect-time snapshot.
type WebSocketHandler struct {
	manager *ConnectionManager
	handler GameHandler
}

// NewWebSocketHandler creates a websocket handler.
func NewWebSocketHandler(manager *ConnectionManager, handler GameHandler) *WebSocketHandler {
	return &WebSocketHandler{manager: manager, handler: handler}
}

// HandlePlay upgrades a player connection.
func (h *WebSocketHandler) HandlePlay(w http.ResponseWriter, r *http.Request) {
	h.handleConnection(w, r, false)
}

// HandleAdmin upgrades an admin connection.
func (h *WebSocketHandler) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	h.handleConnection(w, r, true)
}

func (h *WebSocketHandler) handleConnection(w http.ResponseWriter, r *http.Request, wantAdmin bool) {
	gameID := r.URL.Query().Get("game_id")
	if gameID == "" {
		http.Error(w, "game_id is required", http.StatusBadRequest)
		return
	}
	playerID, err := uuid.Parse(r.URL.Query().Get("player_id"))
	if err != nil {
		http.Error(w, "invalid player_id", http.StatusBadRequest)
		return
	}

	info, err := h.handler.Info(r.Context(), gameID)
	if errors.Is(err, game.ErrGameExpired) {
		http.Error(w, "game expired", http.StatusGone)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID).Msg("failed to look up game")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if wantAdmin && info.AdminID != playerID {
		http.Error(w, "not the game admin", http.StatusForbidden)
		return
	}

	// Assemble the snapshot before upgrading: a broadcast racing this read
	// may deliver fresher state right after, which clients must tolerate.
	snapshot, err := h.handler.Snapshot(r.Context(), gameID, playerID, wantAdmin)
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID).Msg("failed to assemble snapshot")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	wsConn, err := h.manager.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID).Msg("failed to upgrade connection")
		return
	}

	conn := &Connection{
		ID:          uuid.NewString(),
		PlayerID:    playerID,
		GameID:      gameID,
		IsAdmin:     wantAdmin,
		Conn:        wsConn,
		Send:        make(chan []byte, 256),
		Manager:     h.manager,
		ConnectedAt: time.Now(),
	}

	// Queue the snapshot ahead of registration so its frames precede any
	// group broadcast on this connection: images, scores, then phase.
	for _, event := range snapshot {
		sendDirect(conn, event)
	}

	h.manager.register(conn)
}
