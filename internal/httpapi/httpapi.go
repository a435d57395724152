package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abdukhamidov/pos-admin/internal/domain"
	"github.com/abdukhamidov/pos-admin/internal/service"
	"github.com/abdukhamidov/pos-admin/internal/store"
)

type API struct {
	svc           *service.Service
	auth          *AuthManager
	logger        *zap.Logger
	allowedOrigin string
}

func New(svc *service.Service, auth *AuthManager, logger *zap.Logger, allowedOrigin string) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return &API{
		svc:           svc,
		auth:          auth,
		logger:        logger,
		allowedOrigin: allowedOrigin,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/logout", a.requireAuth(a.handleLogout, "ADMIN", "SELLER"))

	// POS surface: seller terminals.
	mux.HandleFunc("/api/v1/pos/catalog", a.requireAuth(a.handleCatalog, "SELLER"))
	mux.HandleFunc("/api/v1/pos/categories", a.requireAuth(a.handlePOSCategories, "SELLER"))
	mux.HandleFunc("/api/v1/pos/shifts/open", a.requireAuth(a.handleShiftOpen, "SELLER"))
	mux.HandleFunc("/api/v1/pos/shifts/close", a.requireAuth(a.handleShiftClose, "SELLER"))
	mux.HandleFunc("/api/v1/pos/shifts/current", a.requireAuth(a.handleShiftCurrent, "SELLER"))
	mux.HandleFunc("/api/v1/pos/sales", a.requireAuth(a.handleSales, "SELLER"))
	mux.HandleFunc("/api/v1/pos/sales/", a.requireAuth(a.handleSaleActions, "SELLER"))

	// Admin surface.
	mux.HandleFunc("/api/v1/admin/branches", a.requireAuth(a.handleBranches, "ADMIN"))
	mux.HandleFunc("/api/v1/admin/branches/", a.requireAuth(a.handleBranchActions, "ADMIN"))
	mux.HandleFunc("/api/v1/admin/warehouses", a.requireAuth(a.handleWarehouses, "ADMIN"))
	mux.HandleFunc("/api/v1/admin/warehouses/", a.requireAuth(a.handleWarehouseActions, "ADMIN"))
	mux.HandleFunc("/api/v1/admin/categories", a.requireAuth(a.handleCategories, "ADMIN"))
	mux.HandleFunc("/api/v1/admin/categories/", a.requireAuth(a.handleCategoryActions, "ADMIN"))
	mux.HandleFunc("/api/v1/admin/products", a.requireAuth(a.handleProducts, "ADMIN"))
	mux.HandleFunc("/api/v1/admin/products/", a.requireAuth(a.handleProductActions, "ADMIN"))
	mux.HandleFunc("/api/v1/admin/users", a.requireAuth(a.handleUsers, "ADMIN"))
	mux.HandleFunc("/api/v1/admin/users/", a.requireAuth(a.handleUserActions, "ADMIN"))
	mux.HandleFunc("/api/v1/admin/inventory/receipt", a.requireAuth(a.handleReceipt, "ADMIN"))
	mux.HandleFunc("/api/v1/admin/inventory/adjust", a.requireAuth(a.handleAdjust, "ADMIN"))
	mux.HandleFunc("/api/v1/admin/inventory/available", a.requireAuth(a.handleAvailable, "ADMIN"))
	mux.HandleFunc("/api/v1/admin/inventory/moves", a.requireAuth(a.handleStockMoves, "ADMIN"))
	mux.HandleFunc("/api/v1/admin/shifts", a.requireAuth(a.handleAdminShifts, "ADMIN"))
	mux.HandleFunc("/api/v1/admin/shifts/", a.requireAuth(a.handleAdminShiftDetail, "ADMIN"))
	mux.HandleFunc("/api/v1/admin/sales", a.requireAuth(a.handleAdminSales, "ADMIN"))
	mux.HandleFunc("/api/v1/admin/reports/sales", a.requireAuth(a.handleSalesReport, "ADMIN"))
	mux.HandleFunc("/api/v1/admin/reports/revenue-by-day", a.requireAuth(a.handleRevenueByDay, "ADMIN"))
	mux.HandleFunc("/api/v1/admin/reports/low-stock", a.requireAuth(a.handleLowStock, "ADMIN"))
	mux.HandleFunc("/api/v1/admin/reports/today", a.requireAuth(a.handleTodayStats, "ADMIN"))
	mux.HandleFunc("/api/v1/admin/audit-logs", a.requireAuth(a.handleAuditLogs, "ADMIN"))

	return a.withCORS(a.withRequestLog(mux))
}

func (a *API) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}
		actor, err := a.auth.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
			return
		}
		if !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "forbidden role")
			return
		}
		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, candidate := range allowed {
		if candidate == role {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if err := a.svc.Logout(r.Context()); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// writeServiceError maps service/store sentinel errors to stable codes so
// terminal clients can branch on them.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrValidation):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, store.ErrForbidden):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "forbidden")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, store.ErrDuplicateKey):
		writeError(w, http.StatusConflict, "DUPLICATE", err.Error())
	case errors.Is(err, store.ErrHasDependents):
		writeError(w, http.StatusConflict, "HAS_DEPENDENTS", err.Error())
	case errors.Is(err, store.ErrSaleNotOpen):
		writeError(w, http.StatusConflict, "SALE_NOT_OPEN", err.Error())
	case errors.Is(err, store.ErrNoActiveShift):
		writeError(w, http.StatusConflict, "NO_ACTIVE_SHIFT", err.Error())
	case errors.Is(err, store.ErrShiftAlreadyOpen):
		writeError(w, http.StatusConflict, "SHIFT_ALREADY_OPEN", err.Error())
	case errors.Is(err, store.ErrOpenSalesExist):
		writeError(w, http.StatusConflict, "OPEN_SALES_EXIST", err.Error())
	case errors.Is(err, store.ErrNoBranchAssigned):
		writeError(w, http.StatusConflict, "NO_BRANCH_ASSIGNED", err.Error())
	case errors.Is(err, store.ErrWarehouseNotFound):
		writeError(w, http.StatusConflict, "WAREHOUSE_NOT_FOUND", err.Error())
	case errors.Is(err, store.ErrProductNotAvailable):
		writeError(w, http.StatusConflict, "PRODUCT_NOT_AVAILABLE", err.Error())
	case errors.Is(err, store.ErrInsufficientStock):
		writeError(w, http.StatusConflict, "INSUFFICIENT_STOCK", err.Error())
	case errors.Is(err, store.ErrNegativeStock):
		writeError(w, http.StatusConflict, "NEGATIVE_STOCK", err.Error())
	default:
		// mask internals on 5xx
		a.logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func parseTimeParam(raw string) *time.Time {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return &t
	}
	if t, err := time.Parse("2006-01-02", trimmed); err == nil {
		return &t
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
