package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/buildcost/docpipe/internal/core/domain"
)

// CanonicalStore writes eligible items into the canonical business tables in
// a single transaction. Items and the document are marked committed inside
// the same transaction, so a failure anywhere leaves nothing committed.
type CanonicalStore struct {
	db *sql.DB
}

func NewCanonicalStore(db *sql.DB) *CanonicalStore {
	return &CanonicalStore{db: db}
}

func (s *CanonicalStore) CommitItems(ctx context.Context, doc *domain.Document, items []domain.ExtractedItem) (*domain.CommitResult, error) {
	now := time.Now().UTC()
	result := &domain.CommitResult{
		DocumentID:  doc.ID,
		Counts:      map[string]int{},
		CommittedAt: now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin commit tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := range items {
		item := &items[i]
		if err := s.commitItem(ctx, tx, doc, item, now, result); err != nil {
			return nil, domain.WrapError(domain.ErrStageFailed, "commit",
				fmt.Errorf("item %q (%s): %w", item.Title, item.ID, err))
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE extracted_items SET committed_at = $2, updated_at = $2 WHERE id = $1
`, item.ID, now); err != nil {
			return nil, fmt.Errorf("mark item %s committed: %w", item.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE documents
SET committed_at = $2, status = $3, updated_at = $2
WHERE id = $1 AND committed_at IS NULL
`, doc.ID, now, string(domain.StatusCommitted)); err != nil {
		return nil, fmt.Errorf("mark document committed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return result, nil
}

func (s *CanonicalStore) commitItem(ctx context.Context, tx *sql.Tx, doc *domain.Document, item *domain.ExtractedItem, now time.Time, result *domain.CommitResult) error {
	switch item.Type {
	case domain.ItemMaterial:
		wrote := false
		if item.UnitPrice != nil && item.MaterialName != "" {
			if err := s.upsertVendorPrice(ctx, tx, doc, item, now); err != nil {
				return err
			}
			result.Counts[domain.TableVendorPrices]++
			result.Summaries = append(result.Summaries,
				fmt.Sprintf("vendor_prices: %s / %s", item.VendorName, item.MaterialName))
			wrote = true
		}
		if isRealizedPurchase(doc.DetectedType) {
			if err := s.insertPurchase(ctx, tx, doc, item, now); err != nil {
				return err
			}
			result.Counts[domain.TablePurchases]++
			result.Summaries = append(result.Summaries, "purchases: "+item.Title)
			wrote = true
		}
		if !wrote {
			// Quote material without a unit price still lands somewhere.
			if err := s.insertPlanItem(ctx, tx, doc, item, now); err != nil {
				return err
			}
			result.Counts[domain.TablePlanItems]++
			result.Summaries = append(result.Summaries, "plan_items: "+item.Title)
		}
		return nil

	case domain.ItemShipping:
		if err := s.insertShippingQuote(ctx, tx, doc, item, now); err != nil {
			return err
		}
		result.Counts[domain.TableShippingQuotes]++
		result.Summaries = append(result.Summaries, "shipping_quotes: "+item.Title)
		return nil

	case domain.ItemLabor, domain.ItemDecision:
		if err := s.insertPlanItem(ctx, tx, doc, item, now); err != nil {
			return err
		}
		result.Counts[domain.TablePlanItems]++
		result.Summaries = append(result.Summaries, "plan_items: "+item.Title)
		return nil

	default:
		return fmt.Errorf("unknown item type %q", item.Type)
	}
}

// isRealizedPurchase reports whether the document records money already
// spent, as opposed to an offered price.
func isRealizedPurchase(t domain.DocumentType) bool {
	return t == domain.TypeInvoice || t == domain.TypeReceipt || t == domain.TypePurchaseOrder
}

func (s *CanonicalStore) upsertVendorPrice(ctx context.Context, tx *sql.Tx, doc *domain.Document, item *domain.ExtractedItem, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO vendor_prices (
	id, vendor_id, vendor_name, material_id, material_name, unit,
	unit_price, tax_percent, lead_time_days,
	source_document_id, source_page, source_span, source_confidence,
	created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)
ON CONFLICT (vendor_name, material_name) DO UPDATE SET
	vendor_id = EXCLUDED.vendor_id,
	material_id = EXCLUDED.material_id,
	unit = EXCLUDED.unit,
	unit_price = EXCLUDED.unit_price,
	tax_percent = EXCLUDED.tax_percent,
	lead_time_days = EXCLUDED.lead_time_days,
	source_document_id = EXCLUDED.source_document_id,
	source_page = EXCLUDED.source_page,
	source_span = EXCLUDED.source_span,
	source_confidence = EXCLUDED.source_confidence,
	updated_at = EXCLUDED.updated_at
`,
		uuid.NewString(), nullString(item.VendorID), item.VendorName,
		nullString(item.MaterialID), item.MaterialName, nullString(item.Unit),
		*item.UnitPrice, item.TaxPercent, item.LeadTimeDays,
		doc.ID, item.SourceRef.Page, spanText(item), item.Confidence, now,
	)
	if err != nil {
		return fmt.Errorf("upsert vendor price: %w", err)
	}
	return nil
}

func (s *CanonicalStore) insertPurchase(ctx context.Context, tx *sql.Tx, doc *domain.Document, item *domain.ExtractedItem, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO purchases (
	id, vendor_id, vendor_name, material_name, title, quantity, unit,
	unit_price, total_price, occurred_at,
	source_document_id, source_page, source_span, source_confidence, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		uuid.NewString(), nullString(item.VendorID), item.VendorName,
		nullString(item.MaterialName), item.Title,
		nullFloat(item.Quantity), nullString(item.Unit),
		nullFloat(item.UnitPrice), nullFloat(item.TotalPrice), nullTime(item.OccurredAt),
		doc.ID, item.SourceRef.Page, spanText(item), item.Confidence, now,
	)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

func (s *CanonicalStore) insertShippingQuote(ctx context.Context, tx *sql.Tx, doc *domain.Document, item *domain.ExtractedItem, now time.Time) error {
	price := item.TotalPrice
	if price == nil {
		price = item.UnitPrice
	}
	_, err := tx.ExecContext(ctx, `
INSERT INTO shipping_quotes (
	id, vendor_id, vendor_name, title, price, lead_time_days, occurred_at,
	source_document_id, source_page, source_span, source_confidence, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		uuid.NewString(), nullString(item.VendorID), item.VendorName, item.Title,
		nullFloat(price), item.LeadTimeDays, nullTime(item.OccurredAt),
		doc.ID, item.SourceRef.Page, spanText(item), item.Confidence, now,
	)
	if err != nil {
		return fmt.Errorf("insert shipping quote: %w", err)
	}
	return nil
}

func (s *CanonicalStore) insertPlanItem(ctx context.Context, tx *sql.Tx, doc *domain.Document, item *domain.ExtractedItem, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO plan_items (
	id, item_type, title, quantity, unit, unit_price,
	source_document_id, source_page, source_span, source_confidence, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		uuid.NewString(), string(item.Type), item.Title,
		nullFloat(item.Quantity), nullString(item.Unit), nullFloat(item.UnitPrice),
		doc.ID, item.SourceRef.Page, spanText(item), item.Confidence, now,
	)
	if err != nil {
		return fmt.Errorf("insert plan item: %w", err)
	}
	return nil
}

func spanText(item *domain.ExtractedItem) string {
	return fmt.Sprintf("%d:%d", item.SourceRef.SpanStart, item.SourceRef.SpanEnd)
}
