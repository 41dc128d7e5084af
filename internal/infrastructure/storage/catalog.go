package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/pricematch/backend/internal/domain"
)

// productColumns is the ordered list of columns selected in product queries.
// Must match the scan order in scanProduct.
const productColumns = `id, supermarket, name, price, price_per_unit, image_url, category`

// foldName is the case folding stored in name_folded and applied to search
// arguments. SQLite's LOWER() only folds ASCII, so SQL never folds names.
func foldName(name string) string {
	return strings.ToLower(name)
}

func scanProduct(scanner interface{ Scan(dest ...any) error }) (domain.RawProduct, error) {
	var p domain.RawProduct
	err := scanner.Scan(&p.ID, &p.Supermarket, &p.Name, &p.Price, &p.PricePerUnit, &p.ImageURL, &p.Category)
	return p, err
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]domain.RawProduct, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []domain.RawProduct
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListProducts returns one retailer's whole catalog in insertion order
func (s *Store) ListProducts(ctx context.Context, store string) ([]domain.RawProduct, error) {
	products, err := s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE supermarket = ? ORDER BY id`, store)
	if err != nil {
		return nil, fmt.Errorf("list %s products: %w", store, err)
	}
	return products, nil
}

// SearchProducts finds products whose name contains query, ignoring case.
// The query is matched literally: LIKE wildcards in it are escaped.
func (s *Store) SearchProducts(ctx context.Context, store, query string, limit int) ([]domain.RawProduct, error) {
	pattern := "%" + escapeLike(foldName(query)) + "%"
	products, err := s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products
		WHERE supermarket = ? AND name_folded LIKE ? ESCAPE '\'
		ORDER BY id LIMIT ?`,
		store, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search %s products: %w", store, err)
	}
	return products, nil
}

// FindByName returns the first product with exactly this name, ignoring case.
// Returns domain.ErrProductNotFound when there is none.
func (s *Store) FindByName(ctx context.Context, store, name string) (*domain.RawProduct, error) {
	row := s.db.QueryRowContext(ctx, s.q(
		`SELECT `+productColumns+` FROM products
		WHERE supermarket = ? AND name_folded = ?
		ORDER BY id LIMIT 1`),
		store, foldName(name))

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find %s product: %w", store, err)
	}
	return &p, nil
}

// InsertProducts appends scraped products in one transaction
func (s *Store) InsertProducts(ctx context.Context, products []domain.RawProduct) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert products: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, s.q(
		`INSERT INTO products (supermarket, name, name_folded, price, price_per_unit, image_url, category)
		VALUES (?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return 0, fmt.Errorf("prepare insert products: %w", err)
	}
	defer stmt.Close()

	for _, p := range products {
		if _, err := stmt.ExecContext(ctx, p.Supermarket, p.Name, foldName(p.Name), p.Price, p.PricePerUnit, p.ImageURL, p.Category); err != nil {
			return 0, fmt.Errorf("insert product %q: %w", p.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert products: %w", err)
	}
	return len(products), nil
}

// FindDuplicates groups a catalog's products sharing a name, most
// repeated first.
func (s *Store) FindDuplicates(ctx context.Context, store string) ([]domain.DuplicateGroup, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT name, category FROM products
		WHERE supermarket = ? AND name IN (
			SELECT name FROM products WHERE supermarket = ? GROUP BY name HAVING COUNT(*) > 1
		)
		ORDER BY name, id`),
		store, store)
	if err != nil {
		return nil, fmt.Errorf("find %s duplicates: %w", store, err)
	}
	defer rows.Close()

	var groups []domain.DuplicateGroup
	for rows.Next() {
		var name, category string
		if err := rows.Scan(&name, &category); err != nil {
			return nil, err
		}
		if n := len(groups); n == 0 || groups[n-1].Name != name {
			groups = append(groups, domain.DuplicateGroup{Name: name})
		}
		g := &groups[len(groups)-1]
		g.Count++
		if !slices.Contains(g.Categories, category) {
			g.Categories = append(g.Categories, category)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Count > groups[j].Count
	})
	return groups, nil
}
