package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/buildcost/docpipe/internal/core/domain"
)

// CatalogRepository reads the vendor and material reference catalogs the
// link stage resolves names against.
type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) Search(ctx context.Context, kind domain.EntityKind, query string) ([]domain.CatalogEntry, error) {
	var rows *sql.Rows
	var err error
	switch kind {
	case domain.EntityVendor:
		rows, err = r.db.QueryContext(ctx, `
SELECT id, name, '' AS unit
FROM vendors
WHERE name ILIKE '%' || $1 || '%' OR $1 = ''
ORDER BY name
LIMIT 50
`, query)
	case domain.EntityMaterial:
		rows, err = r.db.QueryContext(ctx, `
SELECT id, name, COALESCE(unit, '') AS unit
FROM materials
WHERE name ILIKE '%' || $1 || '%' OR $1 = ''
ORDER BY name
LIMIT 50
`, query)
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "catalog search", fmt.Errorf("unknown entity kind %q", kind))
	}
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.CatalogEntry, 0, 16)
	for rows.Next() {
		var e domain.CatalogEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Unit); err != nil {
			return nil, fmt.Errorf("scan catalog entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog entries: %w", err)
	}
	return entries, nil
}
