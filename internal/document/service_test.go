package document

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/hisab-app/backend-hisab/internal/calc"
	"github.com/hisab-app/backend-hisab/internal/common"
	"github.com/hisab-app/backend-hisab/internal/pricing"
	"github.com/hisab-app/backend-hisab/internal/rates"
)

type memStore struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*Document
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[uuid.UUID]*Document)}
}

func (m *memStore) Create(_ context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = &doc
	return nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return *doc, nil
}

func (m *memStore) ReplaceItems(_ context.Context, id uuid.UUID, items []pricing.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	doc.Items = append([]pricing.LineItem(nil), items...)
	return nil
}

func (m *memStore) SaveTotals(_ context.Context, id uuid.UUID, totals *pricing.DocumentTotals, vatRate *decimal.Decimal, warning string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	doc.Totals = totals
	doc.VATRate = vatRate
	doc.Warning = warning
	return nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()
	svc := &Service{
		Store:    store,
		Validate: validator.New(),
		Now:      func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
	svc.Sessions = &calc.Manager{Factory: func(id uuid.UUID) *calc.Session {
		return &calc.Session{
			Rates:     rates.Static{Rate: decimal.RequireFromString("15")},
			OnPublish: func(snap calc.Snapshot) { svc.PersistSnapshot(id, snap) },
		}
	}}
	return svc
}

func TestServiceCreateValidates(t *testing.T) {
	svc := newTestService(t, newMemStore())

	_, err := svc.Create(context.Background(), CreateInput{Kind: "memo"})
	require.Error(t, err, "kind must be sale or purchase")

	doc, err := svc.Create(context.Background(), CreateInput{Kind: "sale", Reference: "INV-100"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, doc.ID)
	require.Equal(t, "sale", doc.Kind)
}

func TestServiceCreateRecordsUser(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := common.WithUserID(context.Background(), "user-42")

	doc, err := svc.Create(ctx, CreateInput{Kind: "purchase"})
	require.NoError(t, err)
	require.Equal(t, "user-42", doc.CreatedBy)
}

func TestReplaceItemsPublishesAndPersistsTotals(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)

	doc, err := svc.Create(context.Background(), CreateInput{Kind: "sale"})
	require.NoError(t, err)

	items := []pricing.LineItem{{
		ItemID:       1,
		Quantity:     decimal.NewFromInt(10),
		PricePerUnit: decimal.RequireFromString("5.00"),
		DiscountType: pricing.DiscountPercentage,
		DiscountVal:  decimal.NewFromInt(10),
	}}
	require.NoError(t, svc.ReplaceItems(context.Background(), doc.ID, items))

	view, err := svc.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, "ready", view.SessionState)
	require.False(t, view.IsCalculating)
	require.NotNil(t, view.Totals)
	require.True(t, view.Totals.FinalTotal.Equal(decimal.RequireFromString("51.75")))

	stored, err := store.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Totals, "published totals must be persisted")
	require.True(t, stored.Totals.FinalTotal.Equal(decimal.RequireFromString("51.75")))
	require.Len(t, stored.Items, 1)
}

func TestReplaceItemsUnknownDocument(t *testing.T) {
	svc := newTestService(t, newMemStore())
	err := svc.ReplaceItems(context.Background(), uuid.New(), nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteClosesSession(t *testing.T) {
	svc := newTestService(t, newMemStore())

	doc, err := svc.Create(context.Background(), CreateInput{Kind: "sale"})
	require.NoError(t, err)
	require.NoError(t, svc.ReplaceItems(context.Background(), doc.ID, []pricing.LineItem{{
		ItemID:       1,
		Quantity:     decimal.NewFromInt(1),
		PricePerUnit: decimal.NewFromInt(100),
		DiscountType: pricing.DiscountFixedAmount,
	}}))

	require.NoError(t, svc.Delete(context.Background(), doc.ID))

	_, ok := svc.Sessions.Peek(doc.ID)
	require.False(t, ok, "session is discarded with the document")

	_, err = svc.Get(context.Background(), doc.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
