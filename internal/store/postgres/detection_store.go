package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

const (
	flowSource    = "streamer"
	tradeFlowType = "large_trade"
)

// DetectionStore implements domain.DetectionStore on the order_flow table.
// Inserts are keyed by the emitter's event ID so a redelivered event is
// stored once.
type DetectionStore struct {
	pool *pgxpool.Pool
}

// NewDetectionStore creates a new DetectionStore backed by the given connection pool.
func NewDetectionStore(pool *pgxpool.Pool) *DetectionStore {
	return &DetectionStore{pool: pool}
}

var _ domain.DetectionStore = (*DetectionStore)(nil)

const flowSelectCols = `id, COALESCE(event_id, ''), ticker, order_type, order_size_usd, price,
	timestamp, source, raw_data, COALESCE(display_ticker, ''), instrument, COALESCE(order_side, '')`

// SaveOrder stores a detected order as a large_order_<type> row.
func (s *DetectionStore) SaveOrder(ctx context.Context, eventID string, order domain.DetectedOrder) error {
	if err := s.insert(ctx, orderRecord(eventID, order)); err != nil {
		return fmt.Errorf("postgres: save order %s: %w", order.Symbol, err)
	}
	return nil
}

// SaveTrade stores a consolidated trade as a large_trade row priced and
// timed at its entry.
func (s *DetectionStore) SaveTrade(ctx context.Context, eventID string, trade domain.DetectedTrade) error {
	if err := s.insert(ctx, tradeRecord(eventID, trade)); err != nil {
		return fmt.Errorf("postgres: save trade %s: %w", trade.Symbol, err)
	}
	return nil
}

func (s *DetectionStore) insert(ctx context.Context, r domain.FlowRecord) error {
	raw, err := json.Marshal(r.RawData)
	if err != nil {
		return fmt.Errorf("marshal raw data: %w", err)
	}

	const query = `
		INSERT INTO order_flow (
			event_id, ticker, order_type, order_size_usd, price, timestamp,
			source, raw_data, display_ticker, instrument, order_side
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''))
		ON CONFLICT (event_id) DO NOTHING`

	_, err = s.pool.Exec(ctx, query,
		r.EventID, r.Ticker, r.OrderType, r.OrderSizeUSD, r.Price, r.Timestamp,
		r.Source, raw, r.DisplayTicker, r.Instrument, r.OrderSide,
	)
	return err
}

// ListRecent returns the newest rows first with pagination and optional
// ticker and time filtering.
func (s *DetectionStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.FlowRecord, error) {
	q := newListQuery(`SELECT ` + flowSelectCols + ` FROM order_flow`)
	if opts.Ticker != "" {
		q.where("ticker", "=", opts.Ticker)
	}
	q.window("timestamp", opts)

	rows, err := s.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent detections: %w", err)
	}
	defer rows.Close()

	records, err := scanFlowRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent detections: %w", err)
	}
	return records, nil
}

// ListBefore returns all rows with timestamp strictly before the given time (for archiving).
func (s *DetectionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.FlowRecord, error) {
	query := `SELECT ` + flowSelectCols + ` FROM order_flow WHERE timestamp < $1 ORDER BY timestamp ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list detections before: %w", err)
	}
	defer rows.Close()

	records, err := scanFlowRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan detections before: %w", err)
	}
	return records, nil
}

// DeleteBefore deletes all rows with timestamp before the given time. Returns the number deleted.
func (s *DetectionStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM order_flow WHERE timestamp < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete detections before: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanFlowRows(rows pgx.Rows) ([]domain.FlowRecord, error) {
	var records []domain.FlowRecord
	for rows.Next() {
		var r domain.FlowRecord
		var raw []byte
		if err := rows.Scan(
			&r.ID, &r.EventID, &r.Ticker, &r.OrderType, &r.OrderSizeUSD, &r.Price,
			&r.Timestamp, &r.Source, &raw, &r.DisplayTicker, &r.Instrument, &r.OrderSide,
		); err != nil {
			return nil, err
		}
		if raw != nil {
			if err := json.Unmarshal(raw, &r.RawData); err != nil {
				return nil, fmt.Errorf("unmarshal raw data: %w", err)
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// orderRecord maps a detected order onto an order_flow row.
func orderRecord(eventID string, o domain.DetectedOrder) domain.FlowRecord {
	raw := map[string]any{
		"order_type":         string(o.OrderType),
		"order_size_shares":  o.SizeShares,
		"detection_method":   string(o.DetectionMethod),
		"bid_size":           o.BidSize,
		"ask_size":           o.AskSize,
		"bid_size_delta":     o.BidSizeDelta,
		"ask_size_delta":     o.AskSizeDelta,
		"volume_delta":       o.VolumeDelta,
		"price_change":       o.PriceChange,
		"price_change_pct":   o.PriceChangePct,
		"seconds_since_last": o.SecondsSinceLast,
		"instrument":         string(o.Instrument),
	}
	if o.Spread != nil {
		raw["spread"] = *o.Spread
	}
	return domain.FlowRecord{
		EventID:       eventID,
		Ticker:        o.Symbol,
		OrderType:     "large_order_" + strings.ToLower(string(o.OrderType)),
		OrderSizeUSD:  o.OrderValueUSD,
		Price:         o.Price,
		Timestamp:     o.Timestamp,
		Source:        flowSource,
		RawData:       raw,
		DisplayTicker: o.Symbol,
		Instrument:    instrumentOr(o.Instrument),
		OrderSide:     string(o.OrderSide),
	}
}

// tradeRecord maps a consolidated trade onto an order_flow row. Trades carry
// no side.
func tradeRecord(eventID string, t domain.DetectedTrade) domain.FlowRecord {
	return domain.FlowRecord{
		EventID:      eventID,
		Ticker:       t.Symbol,
		OrderType:    tradeFlowType,
		OrderSizeUSD: t.TradeValueUSD,
		Price:        t.EntryPrice,
		Timestamp:    t.EntryTime,
		Source:       flowSource,
		RawData: map[string]any{
			"entry_price":      t.EntryPrice,
			"exit_price":       t.ExitPrice,
			"entry_time":       t.EntryTime.Format(time.RFC3339Nano),
			"exit_time":        t.ExitTime.Format(time.RFC3339Nano),
			"volume":           t.Volume,
			"price_change":     t.PriceChange,
			"price_change_pct": t.PriceChangePct,
			"volume_spike":     t.VolumeSpike,
			"detection_method": string(t.DetectionMethod),
		},
		DisplayTicker: t.Symbol,
		Instrument:    instrumentOr(t.Instrument),
	}
}

func instrumentOr(i domain.Instrument) string {
	if i == "" {
		return string(domain.InstrumentEquity)
	}
	return string(i)
}
