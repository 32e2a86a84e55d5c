package store

import (
	"context"
	"sort"
	"sync"

	"stock-advisors/internal/models"
)

// MemoryStore is the non-durable Store implementation. It mirrors the
// SQLite store's semantics exactly; rows are keyed by id in maps.
type MemoryStore struct {
	mu           sync.Mutex
	trades       map[int64]*models.Trade
	records      map[int64]*models.TrackRecord
	nextTradeID  int64
	nextRecordID int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trades:       make(map[int64]*models.Trade),
		records:      make(map[int64]*models.TrackRecord),
		nextTradeID:  1,
		nextRecordID: 1,
	}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

func cloneTrade(t *models.Trade) *models.Trade {
	c := *t
	return &c
}

func cloneRecord(r *models.TrackRecord) *models.TrackRecord {
	c := *r
	return &c
}

// InsertTrade stores a new open trade and returns its id.
func (s *MemoryStore) InsertTrade(_ context.Context, t *models.Trade) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = s.nextTradeID
	s.nextTradeID++
	t.Status = models.StatusOpen
	s.trades[t.ID] = cloneTrade(t)
	return t.ID, nil
}

// CloseTrade records a terminal status for an open trade.
func (s *MemoryStore) CloseTrade(_ context.Context, t *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.trades[t.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Status != models.StatusOpen {
		return ErrAlreadyClosed
	}
	existing.ExitPrice = t.ExitPrice
	existing.ExitDate = t.ExitDate
	existing.Status = t.Status
	existing.PnLDollars = t.PnLDollars
	existing.PnLPercent = t.PnLPercent
	existing.HoldingDays = t.HoldingDays
	return nil
}

// TradeByID fetches one trade.
func (s *MemoryStore) TradeByID(_ context.Context, id int64) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trades[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTrade(t), nil
}

func (s *MemoryStore) tradesWhere(keep func(*models.Trade) bool) []*models.Trade {
	var out []*models.Trade
	for _, t := range s.trades {
		if keep(t) {
			out = append(out, cloneTrade(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OpenTrades returns every trade still open, oldest first.
func (s *MemoryStore) OpenTrades(_ context.Context) ([]*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tradesWhere(func(t *models.Trade) bool { return t.Status == models.StatusOpen }), nil
}

// AllTrades returns every trade, oldest first.
func (s *MemoryStore) AllTrades(_ context.Context) ([]*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tradesWhere(func(*models.Trade) bool { return true }), nil
}

// TradesByAgent returns an agent's trades, oldest first.
func (s *MemoryStore) TradesByAgent(_ context.Context, agentID string) ([]*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tradesWhere(func(t *models.Trade) bool { return t.RecommendedBy == agentID }), nil
}

// InsertTrackRecord stores a new pending record, rejecting a duplicate
// pending (agent, symbol) pair with ErrPendingExists.
func (s *MemoryStore) InsertTrackRecord(_ context.Context, r *models.TrackRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.records {
		if existing.AgentID == r.AgentID && existing.Symbol == r.Symbol &&
			existing.Outcome == models.OutcomePending {
			return 0, ErrPendingExists
		}
	}

	r.ID = s.nextRecordID
	s.nextRecordID++
	r.Outcome = models.OutcomePending
	s.records[r.ID] = cloneRecord(r)
	return r.ID, nil
}

// DeleteTrackRecord removes a record, typically to undo an insert whose
// paired trade failed to persist.
func (s *MemoryStore) DeleteTrackRecord(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

// ResolveTrackRecord writes the outcome fields of a pending record.
func (s *MemoryStore) ResolveTrackRecord(_ context.Context, r *models.TrackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[r.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Outcome != models.OutcomePending {
		return ErrAlreadyResolved
	}
	existing.Outcome = r.Outcome
	existing.ActualReturn = r.ActualReturn
	existing.PeakReturn = r.PeakReturn
	existing.WorstDrawdown = r.WorstDrawdown
	existing.DaysToOutcome = r.DaysToOutcome
	existing.ResolvedAt = r.ResolvedAt
	return nil
}

// PendingTrackRecord returns the most recently created pending record for
// the (agent, symbol) pair.
func (s *MemoryStore) PendingTrackRecord(_ context.Context, agentID, symbol string) (*models.TrackRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var newest *models.TrackRecord
	for _, r := range s.records {
		if r.AgentID != agentID || r.Symbol != symbol || r.Outcome != models.OutcomePending {
			continue
		}
		if newest == nil || r.ID > newest.ID {
			newest = r
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	return cloneRecord(newest), nil
}

// PendingTrackRecordByPipeline returns the pending record created by a
// specific pipeline run.
func (s *MemoryStore) PendingTrackRecordByPipeline(_ context.Context, pipelineID string) (*models.TrackRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var newest *models.TrackRecord
	for _, r := range s.records {
		if r.PipelineID != pipelineID || r.Outcome != models.OutcomePending {
			continue
		}
		if newest == nil || r.ID > newest.ID {
			newest = r
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	return cloneRecord(newest), nil
}

// TrackRecordsByAgent returns an agent's records, oldest first.
func (s *MemoryStore) TrackRecordsByAgent(_ context.Context, agentID string) ([]*models.TrackRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.TrackRecord
	for _, r := range s.records {
		if r.AgentID == agentID {
			out = append(out, cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AgentIDs returns every agent that has at least one track record.
func (s *MemoryStore) AgentIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	for _, r := range s.records {
		seen[r.AgentID] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
