package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
	Ticker string // detection queries only
}

// FlowRecord is one persisted row of the order_flow table. Orders and trades
// share the table; RawData carries the kind-specific diagnostics.
type FlowRecord struct {
	ID            int64          `json:"id"`
	EventID       string         `json:"event_id"`
	Ticker        string         `json:"ticker"`
	OrderType     string         `json:"order_type"`
	OrderSizeUSD  float64        `json:"order_size_usd"`
	Price         float64        `json:"price"`
	Timestamp     time.Time      `json:"timestamp"`
	Source        string         `json:"source"`
	RawData       map[string]any `json:"raw_data"`
	DisplayTicker string         `json:"display_ticker"`
	Instrument    string         `json:"instrument"`
	OrderSide     string         `json:"order_side,omitempty"`
}

// DetectionStore persists detected orders and trades.
type DetectionStore interface {
	SaveOrder(ctx context.Context, eventID string, order DetectedOrder) error
	SaveTrade(ctx context.Context, eventID string, trade DetectedTrade) error
	ListRecent(ctx context.Context, opts ListOpts) ([]FlowRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]FlowRecord, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
