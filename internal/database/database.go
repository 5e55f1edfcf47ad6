package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"
)

// Service wraps the postgres connection pool.
type Service interface {
	// Pool returns the pgx pool used by the stores.
	Pool() *pgxpool.Pool

	// DB returns a database/sql handle over the same pool, for goose.
	DB() *sql.DB

	// Health reports connectivity and basic pool stats.
	Health(ctx context.Context) map[string]string

	Close()
}

type service struct {
	pool *pgxpool.Pool
	db   *sql.DB
}

var (
	databaseURL = os.Getenv("DATABASE_URL")
)

func New() Service {
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	return &service{
		pool: pool,
		db:   stdlib.OpenDBFromPool(pool),
	}
}

func (s *service) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *service) DB() *sql.DB {
	return s.db
}

func (s *service) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := map[string]string{
		"status": "up",
	}

	if err := s.pool.Ping(ctx); err != nil {
		status["status"] = "down"
		status["error"] = err.Error()
		return status
	}

	stats := s.pool.Stat()
	status["total_conns"] = fmt.Sprintf("%d", stats.TotalConns())
	status["idle_conns"] = fmt.Sprintf("%d", stats.IdleConns())

	return status
}

func (s *service) Close() {
	log.Println("Disconnecting from database")
	s.db.Close()
	s.pool.Close()
}
