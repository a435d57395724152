package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abdukhamidov/pos-admin/internal/domain"
	"github.com/abdukhamidov/pos-admin/internal/store"
)

func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.Shift, error) {
	actor, err := s.requireSeller(ctx)
	if err != nil {
		return domain.Shift{}, err
	}
	if req.OpeningCash < 0 {
		return domain.Shift{}, store.ErrValidation
	}

	seller, err := s.repo.GetUser(ctx, actor.UserID)
	if err != nil {
		return domain.Shift{}, err
	}
	if seller.BranchID == "" {
		return domain.Shift{}, store.ErrNoBranchAssigned
	}

	shift, err := s.repo.CreateShift(ctx, domain.Shift{
		SellerID:    actor.UserID,
		BranchID:    seller.BranchID,
		StartedAt:   time.Now().UTC(),
		OpeningNote: strings.TrimSpace(req.OpeningNote),
		OpeningCash: req.OpeningCash,
	})
	if err != nil {
		return domain.Shift{}, err
	}

	s.logAudit(ctx, "shift_open", fmt.Sprintf("shift=%s,branch=%s", shift.ID, shift.BranchID))
	return *shift, nil
}

// CloseShift refuses while the seller still has any open sale, regardless of
// which shift the sale was started under.
func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (domain.Shift, error) {
	actor, err := s.requireSeller(ctx)
	if err != nil {
		return domain.Shift{}, err
	}
	if req.ClosingCash < 0 {
		return domain.Shift{}, store.ErrValidation
	}

	shift, err := s.repo.CloseShift(ctx, actor.UserID, strings.TrimSpace(req.ClosingNote), req.ClosingCash, time.Now().UTC())
	if err != nil {
		return domain.Shift{}, err
	}

	s.logAudit(ctx, "shift_close", fmt.Sprintf("shift=%s", shift.ID))
	return *shift, nil
}

// CurrentShift returns the seller's open shift, or nil when none is open.
func (s *Service) CurrentShift(ctx context.Context) (*domain.Shift, error) {
	actor, err := s.requireSeller(ctx)
	if err != nil {
		return nil, err
	}

	shift, err := s.repo.GetOpenShift(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return shift, nil
}
