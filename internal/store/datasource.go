package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/fiscalstack/fiscaudit/pkg/core"
)

// Access-key column aliases recognized across dynamically ingested tables.
var keyColumns = []string{"chave_de_acesso", "chave"}

// Column aliases carrying an invoice's declared total.
var declaredTotalColumns = []string{"valor_nota_fiscal"}

// Column aliases carrying a line item's total.
var itemTotalColumns = []string{"valor_total"}

// keyedTable is a table holding invoice records addressable by access key.
type keyedTable struct {
	name      string
	keyColumn string
	columns   map[string]bool
}

// keyedTables finds every table with an access-key column. The line-item
// table is excluded where includeItems is false, since repeated keys
// there are normal, not duplicates.
func (s *Store) keyedTables(ctx context.Context, includeItems bool) ([]keyedTable, error) {
	infos, err := s.UserTables(ctx)
	if err != nil {
		return nil, err
	}
	var tables []keyedTable
	for _, info := range infos {
		if !includeItems && info.Name == "nfe_itens_nota" {
			continue
		}
		cols := make(map[string]bool, len(info.Columns))
		for _, c := range info.Columns {
			cols[c] = true
		}
		for _, key := range keyColumns {
			if cols[key] {
				tables = append(tables, keyedTable{name: info.Name, keyColumn: key, columns: cols})
				break
			}
		}
	}
	return tables, nil
}

// KeyOccurrences counts how many rows carry the access key, per table.
// Only document-level tables participate; a table with a count above one
// holds duplicated records.
func (s *Store) KeyOccurrences(ctx context.Context, accessKey string) (map[string]int, error) {
	tables, err := s.keyedTables(ctx, false)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, t := range tables {
		var n int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?",
			quoteIdent(t.name), quoteIdent(t.keyColumn))
		if err := s.db.QueryRowContext(ctx, query, accessKey).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count key in %s: %w", t.name, err)
		}
		if n > 0 {
			counts[t.name] = n
		}
	}
	return counts, nil
}

// AllAccessKeys returns the distinct access keys across every
// document-level table, sorted for deterministic audit ordering.
func (s *Store) AllAccessKeys(ctx context.Context) ([]string, error) {
	tables, err := s.keyedTables(ctx, false)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, t := range tables {
		query := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL AND %s != ''",
			quoteIdent(t.keyColumn), quoteIdent(t.name),
			quoteIdent(t.keyColumn), quoteIdent(t.keyColumn))
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to list keys in %s: %w", t.name, err)
		}
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				rows.Close()
				return nil, err
			}
			seen[key] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// LookupRecord returns the first document-level row matching the access
// key as a column map, preferring the fixed invoice table, along with the
// table it came from. A missing key returns a nil map and empty table.
func (s *Store) LookupRecord(ctx context.Context, accessKey string) (map[string]any, string, error) {
	tables, err := s.keyedTables(ctx, false)
	if err != nil {
		return nil, "", err
	}
	sort.Slice(tables, func(i, j int) bool {
		if (tables[i].name == "nfe_notas_fiscais") != (tables[j].name == "nfe_notas_fiscais") {
			return tables[i].name == "nfe_notas_fiscais"
		}
		return tables[i].name < tables[j].name
	})
	for _, t := range tables {
		query := fmt.Sprintf("SELECT * FROM %s WHERE %s = ? LIMIT 1",
			quoteIdent(t.name), quoteIdent(t.keyColumn))
		_, rows, err := s.QueryRows(ctx, query, accessKey)
		if err != nil {
			return nil, "", fmt.Errorf("failed to look up record in %s: %w", t.name, err)
		}
		if len(rows) > 0 {
			return rows[0], t.name, nil
		}
	}
	return nil, "", nil
}

// DeclaredTotal returns the declared invoice total for the access key.
// Values stay formatted as ingested, so parsing happens here rather than
// in SQL. found is false when no table carries a declared total.
func (s *Store) DeclaredTotal(ctx context.Context, accessKey string) (float64, bool, error) {
	tables, err := s.keyedTables(ctx, false)
	if err != nil {
		return 0, false, err
	}
	for _, t := range tables {
		for _, col := range declaredTotalColumns {
			if !t.columns[col] {
				continue
			}
			query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? LIMIT 1",
				quoteIdent(col), quoteIdent(t.name), quoteIdent(t.keyColumn))
			var raw string
			err := s.db.QueryRowContext(ctx, query, accessKey).Scan(&raw)
			if err != nil {
				continue
			}
			if v, ok := core.ParseDecimal(raw); ok {
				return v, true, nil
			}
		}
	}
	return 0, false, nil
}

// ItemsTotal sums the line-item totals recorded for the access key across
// every table carrying both a key and an item-total column. found is
// false when no line items exist for the key.
func (s *Store) ItemsTotal(ctx context.Context, accessKey string) (float64, bool, error) {
	tables, err := s.keyedTables(ctx, true)
	if err != nil {
		return 0, false, err
	}
	var (
		sum   float64
		found bool
	)
	for _, t := range tables {
		for _, col := range itemTotalColumns {
			if !t.columns[col] {
				continue
			}
			query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
				quoteIdent(col), quoteIdent(t.name), quoteIdent(t.keyColumn))
			rows, err := s.db.QueryContext(ctx, query, accessKey)
			if err != nil {
				return 0, false, fmt.Errorf("failed to sum items in %s: %w", t.name, err)
			}
			for rows.Next() {
				var raw string
				if err := rows.Scan(&raw); err != nil {
					rows.Close()
					return 0, false, err
				}
				if v, ok := core.ParseDecimal(raw); ok {
					sum += v
					found = true
				}
			}
			if err := rows.Err(); err != nil {
				rows.Close()
				return 0, false, err
			}
			rows.Close()
		}
	}
	return sum, found, nil
}
