package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Open creates a new PostgreSQL connection pool
func Open(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}

	// Connection pool configuration
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Int32("max_conns", cfg.MaxConns).
		Int32("min_conns", cfg.MinConns).
		Msg("postgres connection pool created")

	return pool, nil
}

// PG is the pgx-backed Store.
type PG struct {
	pool *pgxpool.Pool
}

// NewPG wraps an open connection pool.
func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

// Begin opens a transaction-backed scope.
func (p *PG) Begin(ctx context.Context) (Scope, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgScope{tx: tx}, nil
}

// pgScope is a Scope backed by one pgx transaction. All repositories share
// the transaction, so reads within the scope are consistent.
type pgScope struct {
	tx pgx.Tx
}

func (s *pgScope) Conversations() ConversationRepo { return &pgConversations{tx: s.tx} }
func (s *pgScope) Participants() ParticipantRepo   { return &pgParticipants{tx: s.tx} }
func (s *pgScope) Messages() MessageRepo           { return &pgMessages{tx: s.tx} }
func (s *pgScope) ReadState() ReadStateRepo        { return &pgReadState{tx: s.tx} }
func (s *pgScope) Outbox() OutboxRepo              { return &pgOutbox{tx: s.tx} }

func (s *pgScope) Commit(ctx context.Context) error   { return s.tx.Commit(ctx) }
func (s *pgScope) Rollback(ctx context.Context) error { return s.tx.Rollback(ctx) }
