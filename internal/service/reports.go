package service

import (
	"context"
	"time"

	"github.com/abdukhamidov/pos-admin/internal/domain"
)

// SalesReport flattens sales into rows for the admin table view.
func (s *Service) SalesReport(ctx context.Context, filter domain.SaleFilter) ([]domain.SaleReportRow, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}

	sales, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return nil, err
	}

	sellerNames := make(map[string]string, 8)
	rows := make([]domain.SaleReportRow, 0, len(sales))
	for _, sale := range sales {
		name, ok := sellerNames[sale.SellerID]
		if !ok {
			if seller, err := s.repo.GetUser(ctx, sale.SellerID); err == nil {
				name = seller.Name
			}
			sellerNames[sale.SellerID] = name
		}
		itemCount := 0
		for _, item := range sale.Items {
			itemCount += item.Qty
		}
		rows = append(rows, domain.SaleReportRow{
			ID:     sale.ID,
			Number: sale.Number,
			Day:    sale.Day,
			Date:   sale.CreatedAt,
			Seller: name,
			Items:  itemCount,
			Total:  sale.Total,
			Status: sale.Status,
		})
	}
	return rows, nil
}

func (s *Service) RevenueByDay(ctx context.Context, branchID string, from *time.Time, to *time.Time) ([]domain.RevenueByDayRow, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.RevenueByDay(ctx, branchID, from, to)
}

func (s *Service) TodayStats(ctx context.Context, branchID string) (domain.TodayStats, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.TodayStats{}, err
	}
	return s.repo.TodayStats(ctx, branchID, s.dayKey(time.Now()))
}

func (s *Service) ListShifts(ctx context.Context, filter domain.ShiftFilter) ([]domain.Shift, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListShifts(ctx, filter)
}

// ShiftDetail returns a shift together with the sales rung up during it.
func (s *Service) ShiftDetail(ctx context.Context, shiftID string) (domain.Shift, []domain.Sale, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Shift{}, nil, err
	}
	shift, err := s.repo.GetShift(ctx, shiftID)
	if err != nil {
		return domain.Shift{}, nil, err
	}
	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{ShiftID: shiftID})
	if err != nil {
		return domain.Shift{}, nil, err
	}
	return *shift, sales, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, filter)
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, limit)
}
