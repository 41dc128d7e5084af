package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pricematch/backend/internal/domain"
)

// mappingColumns is shared by the live and staging tables.
// Must match the scan order in ListMappings.
const mappingColumns = `seq, generic_name, tesco_name, sainsburys_name, tesco_price, sainsburys_price,
	tesco_quantity, tesco_unit, sainsburys_quantity, sainsburys_unit, confidence, version`

// releasedLockError is recorded on runs cleared by ReleaseBuildLock
const releasedLockError = "run lock released manually"

// ListMappings returns the mapping table in build order together with the
// version it was swapped in under. Every row of one swap carries the same
// version, so a single query always yields a matching pair. An empty table
// has no version.
func (s *Store) ListMappings(ctx context.Context) (string, []domain.ProductMapping, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+mappingColumns+` FROM product_mappings ORDER BY seq`)
	if err != nil {
		return "", nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var version string
	mappings := []domain.ProductMapping{}
	for rows.Next() {
		var (
			m               domain.ProductMapping
			seq             int
			tescoQty, sbQty sql.NullFloat64
		)
		if err := rows.Scan(
			&seq, &m.GenericName, &m.TescoName, &m.SainsburysName, &m.TescoPrice, &m.SainsburysPrice,
			&tescoQty, &m.TescoUnit, &sbQty, &m.SainsburysUnit, &m.Confidence, &version,
		); err != nil {
			return "", nil, fmt.Errorf("scan mapping: %w", err)
		}
		m.TescoQuantity = floatPtr(tescoQty)
		m.SainsburysQuantity = floatPtr(sbQty)
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return "", nil, err
	}
	return version, mappings, nil
}

// ReplaceMappings swaps in a complete new mapping table labelled version.
//
// Rows are first written to the staging table. The swap itself is one
// short transaction (delete live rows, copy staging rows), so readers see
// either the old table or the new one, never an empty or partial table.
// Any failure leaves the live table untouched.
func (s *Store) ReplaceMappings(ctx context.Context, version string, mappings []domain.ProductMapping) error {
	if err := s.fillStaging(ctx, version, mappings); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mapping swap: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	statements := []string{
		`DELETE FROM product_mappings`,
		`INSERT INTO product_mappings (` + mappingColumns + `) SELECT ` + mappingColumns + ` FROM product_mappings_staging`,
		`DELETE FROM product_mappings_staging`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mapping swap: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mapping swap: %w", err)
	}

	s.logger.Info().Str("version", version).Int("rows", len(mappings)).Msg("mapping table replaced")
	return nil
}

func (s *Store) fillStaging(ctx context.Context, version string, mappings []domain.ProductMapping) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin staging: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM product_mappings_staging`); err != nil {
		return fmt.Errorf("clear staging: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.q(
		`INSERT INTO product_mappings_staging (`+mappingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare staging insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range mappings {
		if _, err := stmt.ExecContext(ctx,
			i, m.GenericName, m.TescoName, m.SainsburysName, m.TescoPrice, m.SainsburysPrice,
			nullFloat(m.TescoQuantity), m.TescoUnit, nullFloat(m.SainsburysQuantity), m.SainsburysUnit, m.Confidence, version,
		); err != nil {
			return fmt.Errorf("stage mapping %q: %w", m.GenericName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit staging: %w", err)
	}
	return nil
}

// BeginBuild takes the build run lock by inserting a running row. Only one
// running row can exist, so a concurrent build gets ErrBuildInProgress.
func (s *Store) BeginBuild(ctx context.Context) (*domain.BuildRun, error) {
	run := &domain.BuildRun{
		ID:        uuid.NewString(),
		Status:    domain.BuildRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO mapping_runs (id, status, started_at) VALUES (?, ?, ?)`),
		run.ID, run.Status, formatTime(run.StartedAt))
	if isUniqueViolation(err) {
		return nil, domain.ErrBuildInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("begin build: %w", err)
	}
	return run, nil
}

// FinishBuild records the outcome of a run and releases the lock
func (s *Store) FinishBuild(ctx context.Context, runID string, rows int, buildErr error) error {
	status, message := domain.BuildSucceeded, ""
	if buildErr != nil {
		status, message = domain.BuildFailed, buildErr.Error()
	}

	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE mapping_runs SET status = ?, finished_at = ?, row_count = ?, error = ?
		WHERE id = ? AND status = ?`),
		status, formatTime(time.Now()), rows, message, runID, domain.BuildRunning)
	if err != nil {
		return fmt.Errorf("finish build: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish build %s: no running build with this id", runID)
	}
	return nil
}

// LatestSuccessfulBuild returns the most recently finished successful run,
// or nil when no build has succeeded yet.
func (s *Store) LatestSuccessfulBuild(ctx context.Context) (*domain.BuildRun, error) {
	row := s.db.QueryRowContext(ctx, s.q(
		`SELECT id, status, started_at, finished_at, row_count, error FROM mapping_runs
		WHERE status = ? ORDER BY finished_at DESC LIMIT 1`),
		domain.BuildSucceeded)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest build: %w", err)
	}
	return run, nil
}

// ReleaseBuildLock fails any running build, for recovery after a crash.
// Returns the number of runs released.
func (s *Store) ReleaseBuildLock(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE mapping_runs SET status = ?, finished_at = ?, error = ? WHERE status = ?`),
		domain.BuildFailed, formatTime(time.Now()), releasedLockError, domain.BuildRunning)
	if err != nil {
		return 0, fmt.Errorf("release build lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*domain.BuildRun, error) {
	var (
		run        domain.BuildRun
		startedAt  string
		finishedAt sql.NullString
	)
	if err := scanner.Scan(&run.ID, &run.Status, &startedAt, &finishedAt, &run.Rows, &run.Error); err != nil {
		return nil, err
	}

	var err error
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = parseNullableTime(finishedAt); err != nil {
		return nil, err
	}
	return &run, nil
}
