package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

func TestListQuery(t *testing.T) {
	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)

	tests := []struct {
		name     string
		ticker   string
		opts     domain.ListOpts
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "no filters",
			wantSQL: "SELECT * FROM t WHERE 1=1 ORDER BY ts DESC",
		},
		{
			name:     "ticker and paging",
			ticker:   "AAPL",
			opts:     domain.ListOpts{Limit: 50, Offset: 100},
			wantSQL:  "SELECT * FROM t WHERE 1=1 AND ticker = $1 ORDER BY ts DESC LIMIT $2 OFFSET $3",
			wantArgs: []any{"AAPL", 50, 100},
		},
		{
			name:     "time range",
			opts:     domain.ListOpts{Since: &since, Until: &until, Limit: 10},
			wantSQL:  "SELECT * FROM t WHERE 1=1 AND ts >= $1 AND ts <= $2 ORDER BY ts DESC LIMIT $3",
			wantArgs: []any{since, until, 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newListQuery("SELECT * FROM t")
			if tt.ticker != "" {
				q.where("ticker", "=", tt.ticker)
			}
			q.window("ts", tt.opts)
			assert.Equal(t, tt.wantSQL, q.String())
			assert.Equal(t, tt.wantArgs, q.args)
		})
	}
}
