package pg

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"hrportal.org/internal/hr"
)

const maxLimit = 1000

// table describes which columns callers may filter and order on. Keys are
// public column names, values the SQL expressions they map to.
type table struct {
	name         string
	columns      map[string]string
	defaultOrder string
}

// build appends where/order/limit clauses for q to base.
func (t table) build(base string, q hr.Query, args []any) (string, []any, error) {
	var b strings.Builder
	b.WriteString(base)
	args, err := t.where(&b, q.Filters, args)
	if err != nil {
		return "", nil, err
	}

	order := t.defaultOrder
	if q.OrderBy != "" {
		col, ok := t.columns[q.OrderBy]
		if !ok {
			return "", nil, fmt.Errorf("%w: cannot order %s by %q", hr.ErrInvalidQuery, t.name, q.OrderBy)
		}
		order = col
	}
	if order != "" {
		b.WriteString(" order by ")
		b.WriteString(order)
		if q.Desc {
			b.WriteString(" desc")
		}
	}

	limit := q.Limit
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}
	args = append(args, limit)
	fmt.Fprintf(&b, " limit $%d", len(args))
	return b.String(), args, nil
}

// where writes the where clause for filters, numbering placeholders after
// the ones already in args.
func (t table) where(b *strings.Builder, filters []hr.Filter, args []any) ([]any, error) {
	for i, f := range filters {
		col, ok := t.columns[f.Column]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no column %q", hr.ErrInvalidQuery, t.name, f.Column)
		}
		if i == 0 {
			b.WriteString(" where ")
		} else {
			b.WriteString(" and ")
		}
		switch f.Op {
		case hr.OpEq, hr.OpGte, hr.OpLte:
			args = append(args, f.Value)
			fmt.Fprintf(b, "%s %s $%d", col, sqlOp(f.Op), len(args))
		case hr.OpIn:
			vals, ok := f.Value.([]string)
			if !ok {
				return nil, fmt.Errorf("%w: in filter on %q needs []string", hr.ErrInvalidQuery, f.Column)
			}
			if len(vals) == 0 {
				b.WriteString("false")
				continue
			}
			holders := make([]string, len(vals))
			for j, v := range vals {
				args = append(args, v)
				holders[j] = "$" + strconv.Itoa(len(args))
			}
			fmt.Fprintf(b, "%s in (%s)", col, strings.Join(holders, ", "))
		default:
			return nil, fmt.Errorf("%w: unsupported op %q", hr.ErrInvalidQuery, f.Op)
		}
	}
	return args, nil
}

// count runs select count(*) over from, restricted by filters. Counts are
// never capped the way listings are.
func (s *Store) count(ctx context.Context, t table, from string, filters []hr.Filter) (int, error) {
	var b strings.Builder
	b.WriteString("select count(*) from ")
	b.WriteString(from)
	args, err := t.where(&b, filters, nil)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, b.String(), args...).Scan(&n); err != nil {
		return 0, mapErr(t.name, err)
	}
	return n, nil
}

func sqlOp(op hr.Op) string {
	switch op {
	case hr.OpGte:
		return ">="
	case hr.OpLte:
		return "<="
	default:
		return "="
	}
}
