// Package store persists trades and agent track records behind a typed
// repository interface. Two implementations share the same narrow
// surface: a durable SQLite store and an in-memory store used when no
// database engine is available.
package store

import (
	"context"
	"errors"

	"stock-advisors/internal/models"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrAlreadyClosed indicates a close was attempted on a trade
	// already in a terminal status.
	ErrAlreadyClosed = errors.New("store: trade already closed")
	// ErrPendingExists indicates a pending track record already exists
	// for the same (agent, symbol) pair.
	ErrPendingExists = errors.New("store: pending track record already exists for agent and symbol")
	// ErrAlreadyResolved indicates the track record has an outcome.
	ErrAlreadyResolved = errors.New("store: track record already resolved")
)

// Store is the persistence surface the application issues. There is no
// ad hoc query mechanism: every query shape the system needs is a method.
type Store interface {
	// Trades.
	InsertTrade(ctx context.Context, t *models.Trade) (int64, error)
	CloseTrade(ctx context.Context, t *models.Trade) error
	TradeByID(ctx context.Context, id int64) (*models.Trade, error)
	OpenTrades(ctx context.Context) ([]*models.Trade, error)
	AllTrades(ctx context.Context) ([]*models.Trade, error)
	TradesByAgent(ctx context.Context, agentID string) ([]*models.Trade, error)

	// Track records.
	InsertTrackRecord(ctx context.Context, r *models.TrackRecord) (int64, error)
	DeleteTrackRecord(ctx context.Context, id int64) error
	ResolveTrackRecord(ctx context.Context, r *models.TrackRecord) error
	PendingTrackRecord(ctx context.Context, agentID, symbol string) (*models.TrackRecord, error)
	PendingTrackRecordByPipeline(ctx context.Context, pipelineID string) (*models.TrackRecord, error)
	TrackRecordsByAgent(ctx context.Context, agentID string) ([]*models.TrackRecord, error)
	AgentIDs(ctx context.Context) ([]string, error)

	Close() error
}
