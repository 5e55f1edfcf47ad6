package server

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/coder/websocket"
	_ "github.com/joho/godotenv/autoload"
	"github.com/pressly/goose/v3"

	"loopwalk-server/internal/database"
	"loopwalk-server/internal/store"
)

const (
	defaultJanitorInterval = 15 * time.Minute
	defaultRoomTTL         = time.Hour
)

type Server struct {
	port             int
	db               database.Service
	store            store.Store
	sessionManager   *SessionManager
	rateLimiter      *RateLimiter
	connectionHealth *ConnectionHealth

	janitorInterval time.Duration
	roomTTL         time.Duration
}

func NewServer() (*Server, *http.Server) {
	port, _ := strconv.Atoi(os.Getenv("PORT"))
	if port == 0 {
		port = 8080
	}

	// Initialize database
	dbService := database.New()

	// Run migrations
	if err := runMigrations(dbService.DB()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	roomStore := store.NewPostgres(dbService.Pool())

	srv := &Server{
		port:             port,
		db:               dbService,
		store:            roomStore,
		sessionManager:   NewSessionManager(roomStore),
		rateLimiter:      NewRateLimiter(10, time.Second),
		connectionHealth: NewConnectionHealth(),
		janitorInterval:  envDuration("JANITOR_INTERVAL", defaultJanitorInterval),
		roomTTL:          envDuration("ROOM_TTL", defaultRoomTTL),
	}

	// Start background tasks
	go srv.janitorTask()

	// Declare Server config
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", srv.port),
		Handler:      srv.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return srv, httpServer
}

// runMigrations applies database migrations using goose
func runMigrations(db *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, "./db/migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Println("Database migrations applied successfully")
	return nil
}

// Shutdown closes all live websocket connections and the database pool. The
// HTTP listener is shut down separately by the caller.
func (s *Server) Shutdown(ctx context.Context) error {
	s.sessionManager.CloseAll(websocket.StatusGoingAway, "Server shutting down")

	if s.db != nil {
		s.db.Close()
	}

	return ctx.Err()
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("Invalid %s value %q, using default %s", key, v, fallback)
		return fallback
	}
	return d
}
