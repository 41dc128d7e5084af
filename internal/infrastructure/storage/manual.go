package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pricematch/backend/internal/domain"
)

// manualColumns must match the scan order in scanManual.
const manualColumns = `id, generic_name, tesco, sainsburys, confidence, message, created_at, updated_at`

func scanManual(scanner interface{ Scan(dest ...any) error }) (*domain.ManualMapping, error) {
	var (
		m                    domain.ManualMapping
		tesco, sainsburys    string
		createdAt, updatedAt string
	)
	if err := scanner.Scan(&m.ID, &m.GenericName, &tesco, &sainsburys, &m.Confidence, &m.Message, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tesco), &m.Tesco); err != nil {
		return nil, fmt.Errorf("decode tesco side of %s: %w", m.ID, err)
	}
	if err := json.Unmarshal([]byte(sainsburys), &m.Sainsburys); err != nil {
		return nil, fmt.Errorf("decode sainsburys side of %s: %w", m.ID, err)
	}

	var err error
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// FindByQuery returns the manual mapping owning a normalized query, or
// nil, nil when no mapping lists it.
func (s *Store) FindByQuery(ctx context.Context, normalizedQuery string) (*domain.ManualMapping, error) {
	var id string
	err := s.db.QueryRowContext(ctx, s.q(
		`SELECT mapping_id FROM manual_mapping_queries WHERE query = ?`), normalizedQuery).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find manual mapping by query: %w", err)
	}

	m, err := s.GetManualMapping(ctx, id)
	if errors.Is(err, domain.ErrManualMappingNotFound) {
		// deleted between the two reads
		return nil, nil
	}
	return m, err
}

// GetManualMapping returns one manual mapping with its queries.
// Returns domain.ErrManualMappingNotFound for unknown ids.
func (s *Store) GetManualMapping(ctx context.Context, id string) (*domain.ManualMapping, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+manualColumns+` FROM manual_mappings WHERE id = ?`), id)
	m, err := scanManual(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrManualMappingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get manual mapping: %w", err)
	}

	queries, err := s.manualQueries(ctx, `WHERE mapping_id = ?`, id)
	if err != nil {
		return nil, err
	}
	m.Queries = queries[m.ID]
	return m, nil
}

// ListManualMappings returns every manual mapping, oldest first
func (s *Store) ListManualMappings(ctx context.Context) ([]domain.ManualMapping, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+manualColumns+` FROM manual_mappings ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list manual mappings: %w", err)
	}
	defer rows.Close()

	mappings := []domain.ManualMapping{}
	for rows.Next() {
		m, err := scanManual(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	queries, err := s.manualQueries(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range mappings {
		mappings[i].Queries = queries[mappings[i].ID]
	}
	return mappings, nil
}

// manualQueries loads queries grouped by mapping id, in stored order
func (s *Store) manualQueries(ctx context.Context, where string, args ...any) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT mapping_id, query FROM manual_mapping_queries `+where+` ORDER BY mapping_id, seq`), args...)
	if err != nil {
		return nil, fmt.Errorf("load manual mapping queries: %w", err)
	}
	defer rows.Close()

	queries := make(map[string][]string)
	for rows.Next() {
		var id, query string
		if err := rows.Scan(&id, &query); err != nil {
			return nil, err
		}
		queries[id] = append(queries[id], query)
	}
	return queries, rows.Err()
}

// CreateManualMapping stores a mapping and claims its queries. A query
// already owned by another mapping fails with ErrManualMappingConflict.
func (s *Store) CreateManualMapping(ctx context.Context, m *domain.ManualMapping) error {
	tesco, err := json.Marshal(m.Tesco)
	if err != nil {
		return err
	}
	sainsburys, err := json.Marshal(m.Sainsburys)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create manual mapping: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, s.q(
		`INSERT INTO manual_mappings (`+manualColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		m.ID, m.GenericName, string(tesco), string(sainsburys), m.Confidence, m.Message,
		formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
	); err != nil {
		return fmt.Errorf("insert manual mapping: %w", err)
	}

	for i, query := range m.Queries {
		_, err := tx.ExecContext(ctx, s.q(
			`INSERT INTO manual_mapping_queries (query, mapping_id, seq) VALUES (?, ?, ?)`),
			query, m.ID, i)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", domain.ErrManualMappingConflict, query)
		}
		if err != nil {
			return fmt.Errorf("insert manual mapping query: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit manual mapping: %w", err)
	}
	return nil
}

// DeleteManualMapping removes a mapping and releases its queries
func (s *Store) DeleteManualMapping(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete manual mapping: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM manual_mapping_queries WHERE mapping_id = ?`), id); err != nil {
		return fmt.Errorf("delete manual mapping queries: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM manual_mappings WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete manual mapping: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrManualMappingNotFound
	}

	return tx.Commit()
}
