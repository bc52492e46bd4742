package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/buildcost/docpipe/internal/core/domain"
)

type ItemRepository struct {
	db *sql.DB
}

func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemColumns = `
id, document_id, item_type, title, vendor_name, vendor_id, material_name, material_id,
quantity, unit, unit_price, total_price, tax_percent, lead_time_days,
source_page, source_span_start, source_span_end, evidence,
raw_confidence, confidence, is_valid, issues, occurred_at, committed_at,
created_at, updated_at`

// ReplaceForDocument makes the extract stage idempotent per document: prior
// uncommitted rows are dropped and the new batch inserted in one transaction.
func (r *ItemRepository) ReplaceForDocument(ctx context.Context, documentID string, items []domain.ExtractedItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin items tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
DELETE FROM extracted_items
WHERE document_id = $1 AND committed_at IS NULL
`, documentID); err != nil {
		return fmt.Errorf("clear extracted items: %w", err)
	}

	for i := range items {
		item := &items[i]
		issuesJSON, err := json.Marshal(issuesOrEmpty(item.Issues))
		if err != nil {
			return fmt.Errorf("marshal issues: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO extracted_items (
	id, document_id, item_type, title, vendor_name, vendor_id, material_name, material_id,
	quantity, unit, unit_price, total_price, tax_percent, lead_time_days,
	source_page, source_span_start, source_span_end, evidence,
	raw_confidence, confidence, is_valid, issues, occurred_at, committed_at,
	created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
`,
			item.ID, item.DocumentID, string(item.Type), item.Title,
			nullString(item.VendorName), nullString(item.VendorID),
			nullString(item.MaterialName), nullString(item.MaterialID),
			nullFloat(item.Quantity), nullString(item.Unit),
			nullFloat(item.UnitPrice), nullFloat(item.TotalPrice),
			item.TaxPercent, item.LeadTimeDays,
			item.SourceRef.Page, item.SourceRef.SpanStart, item.SourceRef.SpanEnd,
			nullString(item.Evidence),
			item.RawConfidence, item.Confidence, item.IsValid, issuesJSON,
			nullTime(item.OccurredAt), nullTime(item.CommittedAt),
			item.CreatedAt, item.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert extracted item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit items tx: %w", err)
	}
	return nil
}

func (r *ItemRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.ExtractedItem, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+itemColumns+`
FROM extracted_items
WHERE document_id = $1
ORDER BY created_at, id
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query extracted items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.ExtractedItem, 0, 8)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate extracted items: %w", err)
	}
	return items, nil
}

func (r *ItemRepository) GetByID(ctx context.Context, id string) (*domain.ExtractedItem, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+itemColumns+`
FROM extracted_items
WHERE id = $1
`, id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "item", fmt.Errorf("no item with id %s", id))
		}
		return nil, err
	}
	return item, nil
}

func scanItem(row rowScanner) (*domain.ExtractedItem, error) {
	var item domain.ExtractedItem
	var itemType string
	var vendorName, vendorID, materialName, materialID, unit, evidence sql.NullString
	var quantity, unitPrice, totalPrice sql.NullFloat64
	var issuesRaw []byte
	var occurredAt, committedAt sql.NullTime

	err := row.Scan(
		&item.ID, &item.DocumentID, &itemType, &item.Title,
		&vendorName, &vendorID, &materialName, &materialID,
		&quantity, &unit, &unitPrice, &totalPrice,
		&item.TaxPercent, &item.LeadTimeDays,
		&item.SourceRef.Page, &item.SourceRef.SpanStart, &item.SourceRef.SpanEnd,
		&evidence, &item.RawConfidence, &item.Confidence, &item.IsValid, &issuesRaw,
		&occurredAt, &committedAt, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan extracted item: %w", err)
	}

	if err := json.Unmarshal(issuesRaw, &item.Issues); err != nil {
		return nil, fmt.Errorf("unmarshal issues: %w", err)
	}
	item.Type = domain.ItemType(itemType)
	item.VendorName = vendorName.String
	item.VendorID = vendorID.String
	item.MaterialName = materialName.String
	item.MaterialID = materialID.String
	item.Unit = unit.String
	item.Evidence = evidence.String
	item.Quantity = floatPtr(quantity)
	item.UnitPrice = floatPtr(unitPrice)
	item.TotalPrice = floatPtr(totalPrice)
	item.OccurredAt = timePtr(occurredAt)
	item.CommittedAt = timePtr(committedAt)
	return &item, nil
}

func (r *ItemRepository) Update(ctx context.Context, item *domain.ExtractedItem) error {
	issuesJSON, err := json.Marshal(issuesOrEmpty(item.Issues))
	if err != nil {
		return fmt.Errorf("marshal issues: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE extracted_items
SET title = $2, vendor_name = $3, vendor_id = $4, material_name = $5, material_id = $6,
	quantity = $7, unit = $8, unit_price = $9, total_price = $10,
	confidence = $11, is_valid = $12, issues = $13, updated_at = $14
WHERE id = $1 AND committed_at IS NULL
`,
		item.ID, item.Title,
		nullString(item.VendorName), nullString(item.VendorID),
		nullString(item.MaterialName), nullString(item.MaterialID),
		nullFloat(item.Quantity), nullString(item.Unit),
		nullFloat(item.UnitPrice), nullFloat(item.TotalPrice),
		item.Confidence, item.IsValid, issuesJSON, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update extracted item: %w", err)
	}
	return requireItemRowsAffected(res, item.ID)
}

func (r *ItemRepository) UpdateValidation(ctx context.Context, id string, outcome domain.ValidationOutcome) error {
	issuesJSON, err := json.Marshal(issuesOrEmpty(outcome.Issues))
	if err != nil {
		return fmt.Errorf("marshal issues: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE extracted_items
SET is_valid = $2, issues = $3, confidence = $4, updated_at = $5
WHERE id = $1
`, id, outcome.IsValid, issuesJSON, outcome.AdjustedConfidence, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update item validation: %w", err)
	}
	return requireItemRowsAffected(res, id)
}

func (r *ItemRepository) UpdateLink(ctx context.Context, id, vendorID, materialID string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE extracted_items
SET vendor_id = $2, material_id = $3, updated_at = $4
WHERE id = $1
`, id, nullString(vendorID), nullString(materialID), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update item link: %w", err)
	}
	return requireItemRowsAffected(res, id)
}

func requireItemRowsAffected(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "item", fmt.Errorf("no item with id %s", id))
	}
	return nil
}

func issuesOrEmpty(issues []string) []string {
	if issues == nil {
		return []string{}
	}
	return issues
}
