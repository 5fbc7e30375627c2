package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// SQL reads records from Postgres. Entity names map to snake_case tables
// unless overridden with WithTable; field names map camelCase <-> snake_case.
type SQL struct {
	db     *sqlx.DB
	tables map[string]string
}

type SQLOption func(*SQL)

func WithTable(entity, table string) SQLOption {
	return func(s *SQL) { s.tables[entity] = table }
}

func WithTables(tables map[string]string) SQLOption {
	return func(s *SQL) {
		for entity, table := range tables {
			s.tables[entity] = table
		}
	}
}

func NewSQL(db *sqlx.DB, opts ...SQLOption) *SQL {
	s := &SQL{db: db, tables: make(map[string]string)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenSQL connects with the lib/pq driver.
func OpenSQL(ctx context.Context, dsn string, opts ...SQLOption) (*SQL, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewSQL(db, opts...), nil
}

func (s *SQL) Close() error { return s.db.Close() }

func (s *SQL) table(entity string) string {
	if t, ok := s.tables[entity]; ok {
		return t
	}
	return snakeCase(entity)
}

func (s *SQL) GetByID(ctx context.Context, entity, id string) (Record, error) {
	q := fmt.Sprintf("SELECT * FROM %s WHERE %s = $1 LIMIT 1",
		pq.QuoteIdentifier(s.table(entity)), pq.QuoteIdentifier("id"))
	recs, err := s.query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", entity, id, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

func (s *SQL) Find(ctx context.Context, entity string, where Where) ([]Record, error) {
	clause, args := buildWhere(where)
	q := fmt.Sprintf("SELECT * FROM %s%s ORDER BY %s",
		pq.QuoteIdentifier(s.table(entity)), clause, pq.QuoteIdentifier("id"))
	recs, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", entity, err)
	}
	return recs, nil
}

func (s *SQL) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		rec := make(Record, len(row))
		for col, v := range row {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			rec[camelCase(col)] = v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// buildWhere renders a deterministic WHERE clause (columns sorted).
func buildWhere(where Where) (string, []any) {
	if len(where) == 0 {
		return "", nil
	}
	fields := make([]string, 0, len(where))
	for f := range where {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	conds := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		col := pq.QuoteIdentifier(snakeCase(f))
		v := where[f]
		if v == nil {
			conds = append(conds, col+" IS NULL")
			continue
		}
		if id, ok := idString(v); ok {
			v = id
		}
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func snakeCase(s string) string {
	var b strings.Builder
	rs := []rune(s)
	for i, r := range rs {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(rs[i-1]) || (i+1 < len(rs) && unicode.IsLower(rs[i+1]))) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func camelCase(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	var b strings.Builder
	upper := false
	for _, r := range s {
		if r == '_' {
			upper = b.Len() > 0
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
