package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/abdukhamidov/pos-admin/internal/cache"
	"github.com/abdukhamidov/pos-admin/internal/domain"
	"github.com/abdukhamidov/pos-admin/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const catalogCacheTTL = 30 * time.Second

type Service struct {
	repo    store.Repository
	catalog cache.CatalogCache
	logger  *zap.Logger

	dayLoc            *time.Location
	lowStockThreshold int
}

// New wires the service. dayLoc is the business timezone used to bucket
// sales into day keys; branches share one clock.
func New(repo store.Repository, catalog cache.CatalogCache, logger *zap.Logger, dayLoc *time.Location, lowStockThreshold int) *Service {
	if catalog == nil {
		catalog = cache.NoopCatalogCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if dayLoc == nil {
		dayLoc = time.UTC
	}
	if lowStockThreshold < 1 {
		lowStockThreshold = 5
	}

	return &Service{
		repo:              repo,
		catalog:           catalog,
		logger:            logger,
		dayLoc:            dayLoc,
		lowStockThreshold: lowStockThreshold,
	}
}

// dayKey buckets a timestamp into the business day, e.g. "2026-09-01".
func (s *Service) dayKey(t time.Time) string {
	return t.In(s.dayLoc).Format("2006-01-02")
}

func (s *Service) requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, store.ErrForbidden
	}
	return actor, nil
}

func (s *Service) requireSeller(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleSeller {
		return domain.Actor{}, store.ErrForbidden
	}
	return actor, nil
}

// logAudit records an admin or seller action. Audit writes never fail the
// caller's operation.
func (s *Service) logAudit(ctx context.Context, action string, detail string) {
	actor, _ := ActorFromContext(ctx)
	err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		Action: action,
		UserID: actor.UserID,
		Meta:   detail,
	})
	if err != nil {
		s.logger.Warn("audit log write failed",
			zap.String("action", action),
			zap.String("user_id", actor.UserID),
			zap.Error(err))
	}
}

// Logout records the sign-out in the audit trail. Tokens are stateless, so
// the client drops its copy; nothing is revoked server side.
func (s *Service) Logout(ctx context.Context) error {
	if _, ok := ActorFromContext(ctx); !ok {
		return store.ErrForbidden
	}
	s.logAudit(ctx, "auth.logout", "")
	return nil
}

func (s *Service) invalidateCatalog(ctx context.Context, branchID string) {
	if branchID == "" {
		return
	}
	if err := s.catalog.Invalidate(ctx, catalogKey(branchID)); err != nil {
		s.logger.Warn("catalog invalidate failed", zap.String("branch_id", branchID), zap.Error(err))
	}
}

func catalogKey(branchID string) string {
	return fmt.Sprintf("catalog:%s", branchID)
}

// defaultWarehouseFor resolves the branch default warehouse that POS reads
// and checkout writes go through.
func (s *Service) defaultWarehouseFor(ctx context.Context, branchID string) (*domain.Warehouse, error) {
	warehouse, err := s.repo.FindDefaultWarehouse(ctx, branchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrWarehouseNotFound
		}
		return nil, err
	}
	return warehouse, nil
}
