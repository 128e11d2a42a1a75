package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hisab-app/backend-hisab/internal/pricing"
)

// ErrNotFound indicates the requested document does not exist.
var ErrNotFound = errors.New("document: not found")

// Document is a draft sales or purchase document whose rows are being edited.
// Totals and VATRate hold the last published calculation and are nil before
// the first recompute finishes.
type Document struct {
	ID            uuid.UUID               `json:"id"`
	Kind          string                  `json:"kind"`
	Reference     string                  `json:"reference"`
	CreatedBy     string                  `json:"created_by,omitempty"`
	Items         []pricing.LineItem      `json:"items"`
	Totals        *pricing.DocumentTotals `json:"totals"`
	VATRate       *decimal.Decimal        `json:"vat_rate"`
	Warning       string                  `json:"warning,omitempty"`
	IsCalculating bool                    `json:"is_calculating"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// Store persists draft documents and their line items.
type Store interface {
	Create(ctx context.Context, doc Document) error
	Get(ctx context.Context, id uuid.UUID) (Document, error)
	ReplaceItems(ctx context.Context, id uuid.UUID, items []pricing.LineItem) error
	SaveTotals(ctx context.Context, id uuid.UUID, totals *pricing.DocumentTotals, vatRate *decimal.Decimal, warning string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// PGStore implements Store on Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

const insertDocumentSQL = `
INSERT INTO calc_documents (id, kind, reference, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)`

const selectDocumentSQL = `
SELECT kind, reference, COALESCE(created_by, ''), totals, vat_rate::text,
       COALESCE(warning, ''), created_at, updated_at
FROM calc_documents
WHERE id = $1`

const selectItemsSQL = `
SELECT item_id, quantity::text, price_per_unit::text, discount_type, discount_val::text
FROM calc_document_items
WHERE document_id = $1
ORDER BY position`

const deleteItemsSQL = `DELETE FROM calc_document_items WHERE document_id = $1`

const insertItemSQL = `
INSERT INTO calc_document_items (document_id, position, item_id, quantity, price_per_unit, discount_type, discount_val)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

const touchDocumentSQL = `UPDATE calc_documents SET updated_at = now() WHERE id = $1`

const saveTotalsSQL = `
UPDATE calc_documents
SET totals = $2, vat_rate = $3, warning = NULLIF($4, ''), updated_at = now()
WHERE id = $1`

const deleteDocumentSQL = `DELETE FROM calc_documents WHERE id = $1`

func (s *PGStore) Create(ctx context.Context, doc Document) error {
	_, err := s.Pool.Exec(ctx, insertDocumentSQL,
		doc.ID, doc.Kind, doc.Reference, doc.CreatedBy, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (Document, error) {
	doc := Document{ID: id}
	var (
		totalsRaw []byte
		rateText  *string
	)
	err := s.Pool.QueryRow(ctx, selectDocumentSQL, id).Scan(
		&doc.Kind, &doc.Reference, &doc.CreatedBy,
		&totalsRaw, &rateText, &doc.Warning,
		&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("select document: %w", err)
	}
	if len(totalsRaw) > 0 {
		var totals pricing.DocumentTotals
		if err := json.Unmarshal(totalsRaw, &totals); err != nil {
			return Document{}, fmt.Errorf("decode totals: %w", err)
		}
		doc.Totals = &totals
	}
	if rateText != nil {
		rate, err := decimal.NewFromString(*rateText)
		if err != nil {
			return Document{}, fmt.Errorf("parse vat rate: %w", err)
		}
		doc.VATRate = &rate
	}

	rows, err := s.Pool.Query(ctx, selectItemsSQL, id)
	if err != nil {
		return Document{}, fmt.Errorf("select items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			item                 pricing.LineItem
			qty, price, discount string
			discountType         int
		)
		if err := rows.Scan(&item.ItemID, &qty, &price, &discountType, &discount); err != nil {
			return Document{}, fmt.Errorf("scan item: %w", err)
		}
		item.Quantity, _ = decimal.NewFromString(qty)
		item.PricePerUnit, _ = decimal.NewFromString(price)
		item.DiscountType = pricing.DiscountType(discountType)
		item.DiscountVal, _ = decimal.NewFromString(discount)
		doc.Items = append(doc.Items, item)
	}
	if err := rows.Err(); err != nil {
		return Document{}, fmt.Errorf("iterate items: %w", err)
	}
	return doc, nil
}

// ReplaceItems swaps the document's rows in one transaction so a concurrent
// read never observes a partially written collection.
func (s *PGStore) ReplaceItems(ctx context.Context, id uuid.UUID, items []pricing.LineItem) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, touchDocumentSQL, id)
	if err != nil {
		return fmt.Errorf("touch document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(ctx, deleteItemsSQL, id); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	for pos, item := range items {
		_, err := tx.Exec(ctx, insertItemSQL,
			id, pos, item.ItemID,
			item.Quantity.String(), item.PricePerUnit.String(),
			int(item.DiscountType), item.DiscountVal.String())
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PGStore) SaveTotals(ctx context.Context, id uuid.UUID, totals *pricing.DocumentTotals, vatRate *decimal.Decimal, warning string) error {
	var totalsRaw []byte
	if totals != nil {
		raw, err := json.Marshal(totals)
		if err != nil {
			return fmt.Errorf("encode totals: %w", err)
		}
		totalsRaw = raw
	}
	var rateText *string
	if vatRate != nil {
		v := vatRate.String()
		rateText = &v
	}
	tag, err := s.Pool.Exec(ctx, saveTotalsSQL, id, totalsRaw, rateText, warning)
	if err != nil {
		return fmt.Errorf("save totals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.Pool.Exec(ctx, deleteDocumentSQL, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
