package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// LevelOneService is the service name of top-of-book equity updates.
const LevelOneService = "LEVELONE_EQUITIES"

// Numeric field keys of a LEVELONE_EQUITIES content item.
const (
	fieldSymbol  = "0"
	fieldBid     = "1"
	fieldAsk     = "2"
	fieldLast    = "3"
	fieldBidSize = "4"
	fieldAskSize = "5"
	fieldVolume  = "8"
)

// LevelOneFields is the field list requested on subscription.
var LevelOneFields = []string{fieldSymbol, fieldBid, fieldAsk, fieldLast, fieldBidSize, fieldAskSize, fieldVolume}

// serviceData is one service block of a streamer message.
type serviceData struct {
	Service   string           `json:"service"`
	Timestamp int64            `json:"timestamp"`
	Content   []map[string]any `json:"content"`
}

// streamerMessage is the outer envelope. Data carries market updates;
// Response and Notify carry command acks and heartbeats, which are ignored.
type streamerMessage struct {
	Data     []serviceData    `json:"data"`
	Response []map[string]any `json:"response"`
	Notify   []map[string]any `json:"notify"`
}

// LevelOneBook keeps the last accepted quote per symbol. LEVELONE streams
// send only the fields that changed, so each item is merged onto the
// symbol's previous quote before validation. A symbol's first item must
// carry volume; until then its items are dropped. A LevelOneBook is not
// safe for concurrent use.
type LevelOneBook struct {
	last map[string]domain.Quote
}

// NewLevelOneBook creates an empty LevelOneBook.
func NewLevelOneBook() *LevelOneBook {
	return &LevelOneBook{last: make(map[string]domain.Quote)}
}

// DecodeLevelOne extracts quotes from a raw streamer message with a fresh
// book, so every item must stand on its own.
func DecodeLevelOne(raw []byte, now time.Time) (quotes []domain.Quote, dropped int, err error) {
	return NewLevelOneBook().Decode(raw, now)
}

// Decode extracts quotes from a raw streamer message, merging each item onto
// the book. Items that fail validation are skipped and counted in dropped.
// now stamps items whose service block has no timestamp.
func (b *LevelOneBook) Decode(raw []byte, now time.Time) (quotes []domain.Quote, dropped int, err error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var msg streamerMessage
	if err := dec.Decode(&msg); err != nil {
		return nil, 0, fmt.Errorf("feed: decode streamer message: %w", err)
	}

	blocks := msg.Data
	if len(blocks) == 0 {
		// Some relays forward a single service block without the envelope.
		var single serviceData
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&single); err == nil && single.Service != "" {
			blocks = []serviceData{single}
		}
	}

	for _, block := range blocks {
		if block.Service != LevelOneService {
			continue
		}
		ts := now
		if block.Timestamp > 0 {
			ts = time.UnixMilli(block.Timestamp).UTC()
		}
		for _, item := range block.Content {
			q, err := b.merge(item, ts)
			if err != nil {
				dropped++
				continue
			}
			quotes = append(quotes, q)
		}
	}
	return quotes, dropped, nil
}

func (b *LevelOneBook) merge(item map[string]any, ts time.Time) (domain.Quote, error) {
	symbol, _ := item["key"].(string)
	if symbol == "" {
		symbol, _ = item[fieldSymbol].(string)
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	q, ok := b.last[symbol]
	if !ok {
		if _, hasVolume := item[fieldVolume]; !hasVolume {
			return domain.Quote{}, fmt.Errorf("%w: %s: no volume baseline", domain.ErrInvalidQuote, symbol)
		}
		q.Symbol = symbol
	}
	overlayFloat(item, fieldBid, &q.Bid)
	overlayFloat(item, fieldAsk, &q.Ask)
	overlayFloat(item, fieldLast, &q.LastPrice)
	overlayInt(item, fieldBidSize, &q.BidSize)
	overlayInt(item, fieldAskSize, &q.AskSize)
	overlayInt(item, fieldVolume, &q.Volume)
	q.Timestamp = ts

	if err := q.Validate(); err != nil {
		return domain.Quote{}, err
	}
	b.last[symbol] = q
	return q, nil
}

// canonicalQuote is the JSON shape of quotes carried on the quote stream.
type canonicalQuote struct {
	Symbol    string     `json:"symbol"`
	Bid       float64    `json:"bid"`
	Ask       float64    `json:"ask"`
	BidSize   int64      `json:"bid_size"`
	AskSize   int64      `json:"ask_size"`
	Last      float64    `json:"last"`
	Volume    int64      `json:"volume"`
	Timestamp *time.Time `json:"timestamp"`
}

// DecodeQuote parses one canonical JSON quote. A missing timestamp is
// replaced by now.
func DecodeQuote(raw []byte, now time.Time) (domain.Quote, error) {
	var c canonicalQuote
	if err := json.Unmarshal(raw, &c); err != nil {
		return domain.Quote{}, fmt.Errorf("feed: decode quote: %w", err)
	}
	q := domain.Quote{
		Symbol:    strings.ToUpper(strings.TrimSpace(c.Symbol)),
		Bid:       c.Bid,
		Ask:       c.Ask,
		BidSize:   c.BidSize,
		AskSize:   c.AskSize,
		LastPrice: c.Last,
		Volume:    c.Volume,
		Timestamp: now,
	}
	if c.Timestamp != nil {
		q.Timestamp = c.Timestamp.UTC()
	}
	if err := q.Validate(); err != nil {
		return domain.Quote{}, err
	}
	return q, nil
}

// overlayFloat sets *dst from item[key] when the key is present.
func overlayFloat(item map[string]any, key string, dst *float64) {
	raw, ok := item[key]
	if !ok {
		return
	}
	switch v := raw.(type) {
	case json.Number:
		*dst, _ = v.Float64()
	case string:
		*dst, _ = strconv.ParseFloat(v, 64)
	case float64:
		*dst = v
	}
}

// overlayInt sets *dst from item[key] when the key is present.
func overlayInt(item map[string]any, key string, dst *int64) {
	raw, ok := item[key]
	if !ok {
		return
	}
	switch v := raw.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			*dst = n
			return
		}
		f, _ := v.Float64()
		*dst = int64(f)
	case string:
		*dst, _ = strconv.ParseInt(v, 10, 64)
	case float64:
		*dst = int64(v)
	}
}
