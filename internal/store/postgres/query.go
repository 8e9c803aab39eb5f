package postgres

import (
	"strconv"
	"strings"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// listQuery assembles a filtered, newest-first SELECT with positional args.
type listQuery struct {
	sb   strings.Builder
	args []any
}

func newListQuery(selectFrom string) *listQuery {
	q := &listQuery{}
	q.sb.WriteString(selectFrom)
	q.sb.WriteString(" WHERE 1=1")
	return q
}

func (q *listQuery) arg(v any) string {
	q.args = append(q.args, v)
	return "$" + strconv.Itoa(len(q.args))
}

// where adds "AND <col> <op> $n" for v.
func (q *listQuery) where(col, op string, v any) {
	q.sb.WriteString(" AND " + col + " " + op + " " + q.arg(v))
}

// window applies the time range, ordering and pagination of opts on col.
func (q *listQuery) window(col string, opts domain.ListOpts) {
	if opts.Since != nil {
		q.where(col, ">=", *opts.Since)
	}
	if opts.Until != nil {
		q.where(col, "<=", *opts.Until)
	}
	q.sb.WriteString(" ORDER BY " + col + " DESC")
	if opts.Limit > 0 {
		q.sb.WriteString(" LIMIT " + q.arg(opts.Limit))
	}
	if opts.Offset > 0 {
		q.sb.WriteString(" OFFSET " + q.arg(opts.Offset))
	}
}

func (q *listQuery) String() string { return q.sb.String() }
