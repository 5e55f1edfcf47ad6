package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"loopwalk-server/internal/game"
	"loopwalk-server/internal/store"
)

// Application close codes (4000-4999 range) so clients can tell "room full"
// from "room not found" from a generic failure and react accordingly.
const (
	closeBadRequest   websocket.StatusCode = 4400
	closeRoomNotFound websocket.StatusCode = 4404
	closeRoomFull     websocket.StatusCode = 4409
	closeStateError   websocket.StatusCode = 4410
)

func (s *Server) RegisterRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	mux.HandleFunc("POST /rooms", s.createRoomHandler)
	mux.HandleFunc("GET /rooms", s.listRoomsHandler)
	mux.HandleFunc("GET /rooms/{id}", s.getRoomHandler)
	mux.HandleFunc("DELETE /rooms/{id}", s.deleteRoomHandler)

	mux.HandleFunc("/websocket", s.websocketHandler)

	// Wrap the mux with CORS middleware
	return s.corsMiddleware(mux)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*") // Replace "*" with specific origins if needed
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Credentials", "false")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ============================================================================
// Admin surface: room CRUD straight through to the store
// ============================================================================

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "up"})
		return
	}
	writeJSON(w, http.StatusOK, s.db.Health(r.Context()))
}

func (s *Server) createRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "Invalid create room payload")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "NAME_INVALID", "Room name cannot be empty")
		return
	}
	if req.MaxPlayers < game.MinPlayers || req.MaxPlayers > game.MaxPlayers {
		writeError(w, http.StatusBadRequest, "CAPACITY_INVALID",
			fmt.Sprintf("maxPlayers must be between %d and %d", game.MinPlayers, game.MaxPlayers))
		return
	}
	if req.LoopSize != 0 && req.LoopSize < game.MinLoopSize {
		writeError(w, http.StatusBadRequest, "LOOP_SIZE_INVALID",
			fmt.Sprintf("loopSize must be at least %d", game.MinLoopSize))
		return
	}

	room, err := s.createRoomWithUniqueID(r.Context(), req)
	if err != nil {
		log.Printf("Failed to create room: %v", err)
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to create room")
		return
	}

	writeJSON(w, http.StatusCreated, buildRoomSummary(room))
}

// createRoomWithUniqueID retries id generation until the insert sticks.
// Collisions on 4-letter ids are rare but real on a busy server.
func (s *Server) createRoomWithUniqueID(ctx context.Context, req CreateRoomRequest) (*game.Room, error) {
	for attempt := 0; attempt < 10; attempt++ {
		roomID := GenerateRoomID()
		if _, err := s.store.Get(ctx, roomID); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}

		room := game.NewRoom(roomID, req.Name, req.MaxPlayers, req.LoopSize)
		if err := s.store.Create(ctx, room); err != nil {
			return nil, err
		}
		return room, nil
	}
	return nil, errors.New("failed to generate a unique room id")
}

func (s *Server) listRoomsHandler(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-s.roomTTL)

	rooms, err := s.store.ListActiveSince(r.Context(), since)
	if err != nil {
		log.Printf("Failed to list rooms: %v", err)
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to list rooms")
		return
	}

	summaries := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, buildRoomSummary(room))
	}

	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) getRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := NormalizeRoomID(r.PathValue("id"))

	room, err := s.store.Get(r.Context(), roomID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "ROOM_NOT_FOUND", "Room not found")
		return
	}
	if err != nil {
		log.Printf("Failed to get room %s: %v", roomID, err)
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to load room")
		return
	}

	writeJSON(w, http.StatusOK, buildRoomSummary(room))
}

func (s *Server) deleteRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := NormalizeRoomID(r.PathValue("id"))

	existed, err := s.store.Delete(r.Context(), roomID)
	if err != nil {
		log.Printf("Failed to delete room %s: %v", roomID, err)
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to delete room")
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, "ROOM_NOT_FOUND", "Room not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorMessage{Message: message, Code: code})
}

// ============================================================================
// Connection gateway: the websocket endpoint
// ============================================================================

// websocketHandler terminates a real-time connection: validates the room,
// role, and name parameters, resolves join-vs-reconnect through the room's
// session, then pumps move commands until the socket closes. Any transport
// error runs the same teardown as a graceful close.
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // TODO: make environment-specific
	})
	if err != nil {
		http.Error(w, "Failed to open websocket", http.StatusInternalServerError)
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "Server closing")

	ctx := r.Context()

	connectionID := uuid.New().String()
	log.Printf("New connection: %s", connectionID)

	roomID := r.URL.Query().Get("room")
	roleParam := r.URL.Query().Get("role")
	name := r.URL.Query().Get("name")

	if roomID == "" || roleParam == "" || name == "" {
		s.closeWithError(socket, ctx, closeBadRequest, "BAD_REQUEST: room, role and name are required")
		return
	}
	if err := ValidateRoomID(roomID); err != nil {
		s.closeWithError(socket, ctx, closeBadRequest, fmt.Sprintf("BAD_REQUEST: %v", err))
		return
	}
	role, err := ParseRole(roleParam)
	if err != nil {
		s.closeWithError(socket, ctx, closeBadRequest, err.Error())
		return
	}
	if role == RolePlayer {
		if err := ValidatePlayerName(name); err != nil {
			s.closeWithError(socket, ctx, closeBadRequest, err.Error())
			return
		}
	}
	roomID = NormalizeRoomID(roomID)

	session, joined, err := s.attachToRoom(ctx, roomID, role, name, socket, connectionID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.closeWithError(socket, ctx, closeRoomNotFound, "ROOM_NOT_FOUND: Room not found")
		case errors.Is(err, game.ErrRoomFull):
			s.closeWithError(socket, ctx, closeRoomFull, "ROOM_FULL: Room is at player capacity")
		default:
			log.Printf("Connection %s failed to attach to room %s: %v", connectionID, roomID, err)
			s.closeWithError(socket, ctx, websocket.StatusInternalError, "INTERNAL: Failed to join room")
		}
		return
	}

	defer func() {
		// Eager removal: the player record goes the moment its connection
		// closes; a rejoin with the same name mints a fresh token.
		if role == RolePlayer {
			if err := session.Leave(context.Background(), joined.PlayerID, socket); err != nil {
				log.Printf("Failed to remove player %s from room %s: %v", joined.PlayerID, roomID, err)
			}
		}
		s.sessionManager.Detach(session, socket)
		s.rateLimiter.RemoveConnection(connectionID)
		s.connectionHealth.RemoveConnection(connectionID)
		log.Printf("Connection closed: %s", connectionID)
	}()

	// The joining connection gets its identity and snapshot directly, never
	// via broadcast, so there is no ordering ambiguity on its own state.
	if role == RolePlayer {
		if err := s.sendMessage(socket, ctx, ServerMessage{
			Type:    "identity",
			Payload: IdentityMessage{PlayerID: joined.PlayerID},
		}); err != nil {
			log.Printf("Failed to send identity to %s: %v", connectionID, err)
			return
		}
	}
	if err := s.sendMessage(socket, ctx, ServerMessage{
		Type:    "state_update",
		Payload: joined.Snapshot,
	}); err != nil {
		log.Printf("Failed to send snapshot to %s: %v", connectionID, err)
		return
	}

	for {
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			log.Printf("Connection %s read error: %v", connectionID, err)
			return
		}

		if msgType != websocket.MessageText {
			log.Printf("Non-text input from %s", connectionID)
			continue
		}

		s.connectionHealth.UpdateActivity(connectionID)

		if !s.rateLimiter.Allow(connectionID) {
			s.sendError(socket, ctx, "RATE_LIMITED: Too many messages, slow down")
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Invalid JSON from %s: %v", connectionID, err)
			s.sendError(socket, ctx, "Invalid JSON")
			continue
		}

		switch msg.Type {
		case "ping":
			s.handlePing(socket, ctx, connectionID)

		case "move":
			if role != RolePlayer {
				s.sendError(socket, ctx, "NOT_A_PLAYER: Watchers cannot move")
				continue
			}
			if closed := s.handleMove(socket, ctx, session, joined.PlayerID, msg.Payload); closed {
				return
			}

		default:
			log.Printf("Unknown message type '%s' from %s", msg.Type, connectionID)
			s.sendError(socket, ctx, fmt.Sprintf("Unknown message type: %s", msg.Type))
		}
	}
}

// attachToRoom resolves the session for a room and attaches the connection
// per its role, retrying if it raced a session teardown.
func (s *Server) attachToRoom(ctx context.Context, roomID string, role Role, name string, socket *websocket.Conn, connectionID string) (*RoomSession, JoinResult, error) {
	for {
		session := s.sessionManager.GetOrCreate(roomID)

		var joined JoinResult
		var err error
		if role == RoleWatcher {
			joined.Snapshot, err = session.Watch(ctx, socket, connectionID)
		} else {
			joined, err = session.Join(ctx, name, socket, connectionID)
		}

		if errors.Is(err, errSessionClosed) {
			continue
		}
		if err != nil {
			s.sessionManager.Reap(session)
			return nil, JoinResult{}, err
		}
		return session, joined, nil
	}
}

func (s *Server) handlePing(socket *websocket.Conn, ctx context.Context, connectionID string) {
	response := ServerMessage{
		Type:    "pong",
		Payload: struct{}{},
	}

	if err := s.sendMessage(socket, ctx, response); err != nil {
		log.Printf("Failed to send pong to %s: %v", connectionID, err)
	}
}

// handleMove applies one move command. Returns true when the connection must
// close: a PLAYER_NOT_FOUND means the client's identity went stale (its
// removal raced this command) and it has to resynchronize by rejoining.
func (s *Server) handleMove(socket *websocket.Conn, ctx context.Context, session *RoomSession, playerID string, payload json.RawMessage) bool {
	var cmd MoveCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		s.sendError(socket, ctx, "INVALID_PAYLOAD: Invalid move command")
		return false
	}

	dir, err := game.ParseDirection(cmd.Direction)
	if err != nil {
		s.sendError(socket, ctx, err.Error())
		return false
	}

	_, err = session.Move(ctx, playerID, dir)
	if errors.Is(err, game.ErrPlayerNotFound) {
		s.sendError(socket, ctx, err.Error())
		socket.Close(closeStateError, "Player no longer in room, rejoin to resync")
		return true
	}
	if err != nil {
		// Store failures are fatal to this operation only; the session and
		// the other rooms keep running.
		log.Printf("Move failed for player %s: %v", playerID, err)
		s.sendError(socket, ctx, "STORE_ERROR: Move could not be applied")
		return false
	}

	// The broadcast already carried the new snapshot to this connection;
	// nothing else to send.
	return false
}

func (s *Server) sendMessage(socket *websocket.Conn, ctx context.Context, msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return socket.Write(ctx, websocket.MessageText, data)
}

func (s *Server) sendError(socket *websocket.Conn, ctx context.Context, msg string) {
	response := ServerMessage{
		Type: "error",
		Payload: ErrorMessage{
			Message: msg,
		},
	}

	if err := s.sendMessage(socket, ctx, response); err != nil {
		log.Printf("Failed to send error message: %v", err)
	}
}

// closeWithError sends an error payload then closes with a distinctive code.
func (s *Server) closeWithError(socket *websocket.Conn, ctx context.Context, code websocket.StatusCode, msg string) {
	s.sendError(socket, ctx, msg)
	socket.Close(code, msg)
}
