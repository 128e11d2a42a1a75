package document

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hisab-app/backend-hisab/internal/calc"
	"github.com/hisab-app/backend-hisab/internal/common"
	"github.com/hisab-app/backend-hisab/internal/pricing"
)

// CreateInput is the validated payload for opening a draft document.
type CreateInput struct {
	Kind      string `json:"kind" validate:"required,oneof=sale purchase"`
	Reference string `json:"reference" validate:"max=64"`
}

// View is a document enriched with the live session state. While a recompute
// is pending the persisted totals may lag the submitted items, which the
// is_calculating flag signals to the frontend.
type View struct {
	Document
	SessionState string `json:"session_state"`
}

// Service owns draft document lifecycle and connects row edits to the
// per-document calculation session.
type Service struct {
	Store    Store
	Sessions *calc.Manager
	Validate *validator.Validate
	Logger   zerolog.Logger
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Create opens a new draft document.
func (s *Service) Create(ctx context.Context, in CreateInput) (Document, error) {
	if s.Store == nil {
		return Document{}, fmt.Errorf("document store not configured")
	}
	if s.Validate != nil {
		if err := s.Validate.Struct(in); err != nil {
			return Document{}, err
		}
	}
	now := s.now()
	doc := Document{
		ID:        uuid.New(),
		Kind:      in.Kind,
		Reference: in.Reference,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if userID, ok := common.UserID(ctx); ok {
		doc.CreatedBy = userID
	}
	if err := s.Store.Create(ctx, doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Get loads a document and annotates it with the session state. The session
// snapshot wins over persisted totals when it is fresher.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (View, error) {
	doc, err := s.Store.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	view := View{Document: doc, SessionState: calc.StateIdle.String()}
	if s.Sessions != nil {
		if sess, ok := s.Sessions.Peek(id); ok {
			snap := sess.Snapshot()
			view.SessionState = snap.State.String()
			view.IsCalculating = snap.State == calc.StateCalculating
			if snap.State == calc.StateReady {
				view.Totals = snap.Totals
				view.VATRate = snap.VATRate
				view.Warning = snap.Warning
			}
		}
	}
	return view, nil
}

// ReplaceItems persists the new row collection and triggers the session's
// debounced recompute. Replaying the same collection is harmless; the latest
// submission always wins.
func (s *Service) ReplaceItems(ctx context.Context, id uuid.UUID, items []pricing.LineItem) error {
	if err := s.Store.ReplaceItems(ctx, id, items); err != nil {
		return err
	}
	if s.Sessions != nil {
		s.Sessions.Get(id).Submit(items)
	}
	return nil
}

// Delete discards the draft and its session.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.Store.Delete(ctx, id); err != nil {
		return err
	}
	if s.Sessions != nil {
		s.Sessions.Close(id)
	}
	return nil
}

// PersistSnapshot stores a published session snapshot. It runs detached from
// any request, so failures are logged rather than surfaced.
func (s *Service) PersistSnapshot(id uuid.UUID, snap calc.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Store.SaveTotals(ctx, id, snap.Totals, snap.VATRate, snap.Warning); err != nil {
		s.Logger.Warn().Err(err).Str("document_id", id.String()).Msg("persist totals failed")
	}
}
