package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"stock-advisors/internal/models"
)

// SQLiteStore is the durable Store implementation.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and ensures
// the schema exists. The schema is idempotent; there are no migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_loc=UTC")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		action TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		entry_price TEXT NOT NULL,
		entry_date DATETIME NOT NULL,
		exit_price TEXT,
		exit_date DATETIME,
		stop_loss TEXT,
		take_profit TEXT,
		status TEXT NOT NULL DEFAULT 'open',
		pnl_dollars TEXT,
		pnl_percent REAL,
		holding_days INTEGER,
		recommended_by TEXT NOT NULL,
		confidence REAL,
		pipeline_id TEXT,
		notes TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
	CREATE INDEX IF NOT EXISTS idx_trades_agent ON trades(recommended_by);

	CREATE TABLE IF NOT EXISTS agent_track_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		recommendation TEXT NOT NULL,
		confidence REAL,
		target_price TEXT,
		stop_loss TEXT,
		recommended_at DATETIME NOT NULL,
		outcome TEXT NOT NULL DEFAULT 'pending',
		actual_return REAL,
		peak_return REAL,
		worst_drawdown REAL,
		days_to_outcome INTEGER,
		resolved_at DATETIME,
		pipeline_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_track_records_pair ON agent_track_records(agent_id, symbol, outcome);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func scanDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, fmt.Errorf("parse decimal %q: %w", s.String, err)
	}
	return &d, nil
}

// InsertTrade persists a new trade and returns its id.
func (s *SQLiteStore) InsertTrade(ctx context.Context, t *models.Trade) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (symbol, action, quantity, entry_price, entry_date,
			stop_loss, take_profit, status, recommended_by, confidence, pipeline_id, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Symbol, string(t.Action), t.Quantity, t.EntryPrice.String(), t.EntryDate,
		nullDecimal(t.StopLoss), nullDecimal(t.TakeProfit), string(models.StatusOpen),
		t.RecommendedBy, nullFloat(t.Confidence), t.PipelineID, t.Notes)
	if err != nil {
		return 0, fmt.Errorf("insert trade: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert trade id: %w", err)
	}
	t.ID = id
	t.Status = models.StatusOpen
	return id, nil
}

// CloseTrade records a terminal status and exit accounting for a trade.
// The update only matches open rows, so a second close finds nothing and
// fails with ErrAlreadyClosed.
func (s *SQLiteStore) CloseTrade(ctx context.Context, t *models.Trade) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trades
		SET exit_price = ?, exit_date = ?, status = ?, pnl_dollars = ?, pnl_percent = ?, holding_days = ?
		WHERE id = ? AND status = 'open'`,
		nullDecimal(t.ExitPrice), nullTime(t.ExitDate), string(t.Status),
		nullDecimal(t.PnLDollars), nullFloat(t.PnLPercent), nullInt(t.HoldingDays), t.ID)
	if err != nil {
		return fmt.Errorf("close trade %d: %w", t.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close trade %d: %w", t.ID, err)
	}
	if affected == 0 {
		if _, err := s.TradeByID(ctx, t.ID); err != nil {
			return err
		}
		return ErrAlreadyClosed
	}
	return nil
}

const tradeColumns = `id, symbol, action, quantity, entry_price, entry_date,
	exit_price, exit_date, stop_loss, take_profit, status, pnl_dollars,
	pnl_percent, holding_days, recommended_by, confidence, pipeline_id, notes`

func scanTrade(row interface{ Scan(...any) error }) (*models.Trade, error) {
	var (
		t          models.Trade
		action     string
		status     string
		entryPrice string
		exitPrice  sql.NullString
		exitDate   sql.NullTime
		stopLoss   sql.NullString
		takeProfit sql.NullString
		pnlDollars sql.NullString
		pnlPercent sql.NullFloat64
		holding    sql.NullInt64
		confidence sql.NullFloat64
		pipeline   sql.NullString
		notes      sql.NullString
	)
	err := row.Scan(&t.ID, &t.Symbol, &action, &t.Quantity, &entryPrice, &t.EntryDate,
		&exitPrice, &exitDate, &stopLoss, &takeProfit, &status, &pnlDollars,
		&pnlPercent, &holding, &t.RecommendedBy, &confidence, &pipeline, &notes)
	if err != nil {
		return nil, err
	}

	t.Action = models.TradeAction(action)
	t.Status = models.TradeStatus(status)
	entry, err := decimal.NewFromString(entryPrice)
	if err != nil {
		return nil, fmt.Errorf("parse entry price %q: %w", entryPrice, err)
	}
	t.EntryPrice = entry

	if t.ExitPrice, err = scanDecimal(exitPrice); err != nil {
		return nil, err
	}
	if exitDate.Valid {
		d := exitDate.Time
		t.ExitDate = &d
	}
	if t.StopLoss, err = scanDecimal(stopLoss); err != nil {
		return nil, err
	}
	if t.TakeProfit, err = scanDecimal(takeProfit); err != nil {
		return nil, err
	}
	if t.PnLDollars, err = scanDecimal(pnlDollars); err != nil {
		return nil, err
	}
	if pnlPercent.Valid {
		v := pnlPercent.Float64
		t.PnLPercent = &v
	}
	if holding.Valid {
		v := int(holding.Int64)
		t.HoldingDays = &v
	}
	if confidence.Valid {
		v := confidence.Float64
		t.Confidence = &v
	}
	t.PipelineID = pipeline.String
	t.Notes = notes.String
	return &t, nil
}

// TradeByID fetches one trade.
func (s *SQLiteStore) TradeByID(ctx context.Context, id int64) (*models.Trade, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)
	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("trade %d: %w", id, err)
	}
	return t, nil
}

func (s *SQLiteStore) queryTrades(ctx context.Context, query string, args ...any) ([]*models.Trade, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// OpenTrades returns every trade still open, oldest first.
func (s *SQLiteStore) OpenTrades(ctx context.Context) ([]*models.Trade, error) {
	return s.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades WHERE status = 'open' ORDER BY id`)
}

// AllTrades returns every trade, oldest first.
func (s *SQLiteStore) AllTrades(ctx context.Context) ([]*models.Trade, error) {
	return s.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades ORDER BY id`)
}

// TradesByAgent returns an agent's trades, oldest first.
func (s *SQLiteStore) TradesByAgent(ctx context.Context, agentID string) ([]*models.Trade, error) {
	return s.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades WHERE recommended_by = ? ORDER BY id`, agentID)
}

// InsertTrackRecord persists a new pending track record. At most one
// pending record may exist per (agent, symbol); a duplicate is rejected
// with ErrPendingExists.
func (s *SQLiteStore) InsertTrackRecord(ctx context.Context, r *models.TrackRecord) (int64, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM agent_track_records
		WHERE agent_id = ? AND symbol = ? AND outcome = 'pending'`,
		r.AgentID, r.Symbol).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("check pending records: %w", err)
	}
	if count > 0 {
		return 0, ErrPendingExists
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_track_records (agent_id, symbol, recommendation, confidence,
			target_price, stop_loss, recommended_at, outcome, pipeline_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?)`,
		r.AgentID, r.Symbol, string(r.Recommendation), nullFloat(r.Confidence),
		nullDecimal(r.TargetPrice), nullDecimal(r.StopLoss), r.RecommendedAt, r.PipelineID)
	if err != nil {
		return 0, fmt.Errorf("insert track record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert track record id: %w", err)
	}
	r.ID = id
	r.Outcome = models.OutcomePending
	return id, nil
}

// DeleteTrackRecord removes a record, typically to undo an insert whose
// paired trade failed to persist.
func (s *SQLiteStore) DeleteTrackRecord(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agent_track_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete track record %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete track record %d: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ResolveTrackRecord writes the outcome fields of a pending record.
func (s *SQLiteStore) ResolveTrackRecord(ctx context.Context, r *models.TrackRecord) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE agent_track_records
		SET outcome = ?, actual_return = ?, peak_return = ?, worst_drawdown = ?,
			days_to_outcome = ?, resolved_at = ?
		WHERE id = ? AND outcome = 'pending'`,
		string(r.Outcome), nullFloat(r.ActualReturn), nullFloat(r.PeakReturn),
		nullFloat(r.WorstDrawdown), nullInt(r.DaysToOutcome), nullTime(r.ResolvedAt), r.ID)
	if err != nil {
		return fmt.Errorf("resolve track record %d: %w", r.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve track record %d: %w", r.ID, err)
	}
	if affected == 0 {
		var count int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM agent_track_records WHERE id = ?`, r.ID).Scan(&count); err != nil {
			return fmt.Errorf("resolve track record %d: %w", r.ID, err)
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrAlreadyResolved
	}
	return nil
}

const trackRecordColumns = `id, agent_id, symbol, recommendation, confidence,
	target_price, stop_loss, recommended_at, outcome, actual_return,
	peak_return, worst_drawdown, days_to_outcome, resolved_at, pipeline_id`

func scanTrackRecord(row interface{ Scan(...any) error }) (*models.TrackRecord, error) {
	var (
		r          models.TrackRecord
		rec        string
		outcome    string
		confidence sql.NullFloat64
		target     sql.NullString
		stop       sql.NullString
		actual     sql.NullFloat64
		peak       sql.NullFloat64
		drawdown   sql.NullFloat64
		days       sql.NullInt64
		resolvedAt sql.NullTime
		pipeline   sql.NullString
	)
	err := row.Scan(&r.ID, &r.AgentID, &r.Symbol, &rec, &confidence, &target, &stop,
		&r.RecommendedAt, &outcome, &actual, &peak, &drawdown, &days, &resolvedAt, &pipeline)
	if err != nil {
		return nil, err
	}

	r.Recommendation = models.TradeAction(rec)
	r.Outcome = models.Outcome(outcome)
	if confidence.Valid {
		v := confidence.Float64
		r.Confidence = &v
	}
	if r.TargetPrice, err = scanDecimal(target); err != nil {
		return nil, err
	}
	if r.StopLoss, err = scanDecimal(stop); err != nil {
		return nil, err
	}
	if actual.Valid {
		v := actual.Float64
		r.ActualReturn = &v
	}
	if peak.Valid {
		v := peak.Float64
		r.PeakReturn = &v
	}
	if drawdown.Valid {
		v := drawdown.Float64
		r.WorstDrawdown = &v
	}
	if days.Valid {
		v := int(days.Int64)
		r.DaysToOutcome = &v
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		r.ResolvedAt = &t
	}
	r.PipelineID = pipeline.String
	return &r, nil
}

// PendingTrackRecord returns the most recently created pending record for
// the (agent, symbol) pair.
func (s *SQLiteStore) PendingTrackRecord(ctx context.Context, agentID, symbol string) (*models.TrackRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+trackRecordColumns+` FROM agent_track_records
		WHERE agent_id = ? AND symbol = ? AND outcome = 'pending'
		ORDER BY id DESC LIMIT 1`, agentID, symbol)
	r, err := scanTrackRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pending track record: %w", err)
	}
	return r, nil
}

// PendingTrackRecordByPipeline returns the pending record created by a
// specific pipeline run.
func (s *SQLiteStore) PendingTrackRecordByPipeline(ctx context.Context, pipelineID string) (*models.TrackRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+trackRecordColumns+` FROM agent_track_records
		WHERE pipeline_id = ? AND outcome = 'pending'
		ORDER BY id DESC LIMIT 1`, pipelineID)
	r, err := scanTrackRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pending track record by pipeline: %w", err)
	}
	return r, nil
}

// TrackRecordsByAgent returns an agent's records, oldest first.
func (s *SQLiteStore) TrackRecordsByAgent(ctx context.Context, agentID string) ([]*models.TrackRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+trackRecordColumns+` FROM agent_track_records
		WHERE agent_id = ? ORDER BY id`, agentID)
	if err != nil {
		return nil, fmt.Errorf("track records for %s: %w", agentID, err)
	}
	defer rows.Close()

	var records []*models.TrackRecord
	for rows.Next() {
		r, err := scanTrackRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan track record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// AgentIDs returns every agent that has at least one track record.
func (s *SQLiteStore) AgentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT agent_id FROM agent_track_records ORDER BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("agent ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
