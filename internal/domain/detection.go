package domain

import "time"

// OrderSide is the inferred direction of a detected order.
type OrderSide string

const (
	OrderSideBuy      OrderSide = "BUY"
	OrderSideSell     OrderSide = "SELL"
	OrderSideExecuted OrderSide = "EXECUTED" // volume printed, direction undetermined
)

// OrderType classifies a detected order for storage and alerting.
type OrderType string

const (
	OrderTypeBuy        OrderType = "BUY_ORDER"
	OrderTypeSell       OrderType = "SELL_ORDER"
	OrderTypeLargeTrade OrderType = "LARGE_TRADE"
)

// OrderTypeFor maps an inferred side to its order type.
func OrderTypeFor(side OrderSide) OrderType {
	switch side {
	case OrderSideBuy:
		return OrderTypeBuy
	case OrderSideSell:
		return OrderTypeSell
	default:
		return OrderTypeLargeTrade
	}
}

// DetectionMethod names the heuristic that produced a DetectedOrder.
type DetectionMethod string

const (
	MethodBidSizeIncrease            DetectionMethod = "BID_SIZE_INCREASE"
	MethodAskSizeIncrease            DetectionMethod = "ASK_SIZE_INCREASE"
	MethodVolumeSpikeWithPriceImpact DetectionMethod = "VOLUME_SPIKE_WITH_PRICE_IMPACT"
	MethodVolumeSpikeNoPriceImpact   DetectionMethod = "VOLUME_SPIKE_NO_PRICE_IMPACT"
	MethodCombinedSignal             DetectionMethod = "COMBINED_SIGNAL"
)

// TradeMethod names how the accumulator reached its threshold.
type TradeMethod string

const (
	TradeMethodAccumulated    TradeMethod = "ACCUMULATED"
	TradeMethodImmediateSpike TradeMethod = "IMMEDIATE_SPIKE"
)

// Instrument is the asset class a detection refers to.
type Instrument string

const (
	InstrumentEquity Instrument = "equity"
	InstrumentOption Instrument = "option"
)

// DetectedOrder is a large order inferred from consecutive quotes. It is a
// value object: once built it is never mutated.
type DetectedOrder struct {
	Symbol          string          `json:"symbol"`
	OrderType       OrderType       `json:"order_type"`
	OrderSide       OrderSide       `json:"order_side"`
	OrderValueUSD   float64         `json:"order_value_usd"`
	Price           float64         `json:"price"`
	SizeShares      int64           `json:"order_size_shares"`
	Timestamp       time.Time       `json:"timestamp"`
	Instrument      Instrument      `json:"instrument"`
	DetectionMethod DetectionMethod `json:"detection_method"`

	// Diagnostics.
	BidSize          int64    `json:"bid_size"`
	AskSize          int64    `json:"ask_size"`
	Spread           *float64 `json:"spread,omitempty"`
	BidSizeDelta     int64    `json:"bid_size_delta"`
	AskSizeDelta     int64    `json:"ask_size_delta"`
	VolumeDelta      int64    `json:"volume_delta"`
	PriceChange      float64  `json:"price_change"`
	PriceChangePct   float64  `json:"price_change_pct"`
	SecondsSinceLast float64  `json:"seconds_since_last"`
}

// DetectedTrade is one consolidated large trade emitted by the accumulator.
type DetectedTrade struct {
	Symbol          string      `json:"symbol"`
	EntryPrice      float64     `json:"entry_price"`
	ExitPrice       float64     `json:"exit_price"`
	EntryTime       time.Time   `json:"entry_time"`
	ExitTime        time.Time   `json:"exit_time"`
	Volume          int64       `json:"volume"`
	TradeValueUSD   float64     `json:"trade_value_usd"`
	PriceChange     float64     `json:"price_change"`
	PriceChangePct  float64     `json:"price_change_pct"`
	VolumeSpike     bool        `json:"volume_spike"`
	DetectionMethod TradeMethod `json:"detection_method"`
	Instrument      Instrument  `json:"instrument"`
}
