package tracker

import (
	"time"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

var t0 = time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)

type quoteOpt func(*domain.Quote)

func quote(symbol string, at time.Duration, opts ...quoteOpt) domain.Quote {
	q := domain.Quote{Symbol: symbol, Timestamp: t0.Add(at)}
	for _, o := range opts {
		o(&q)
	}
	return q
}

func bid(price float64, size int64) quoteOpt {
	return func(q *domain.Quote) { q.Bid, q.BidSize = price, size }
}

func ask(price float64, size int64) quoteOpt {
	return func(q *domain.Quote) { q.Ask, q.AskSize = price, size }
}

func last(price float64) quoteOpt {
	return func(q *domain.Quote) { q.LastPrice = price }
}

func volume(v int64) quoteOpt {
	return func(q *domain.Quote) { q.Volume = v }
}
