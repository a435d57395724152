package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abdukhamidov/pos-admin/internal/cache"
	"github.com/abdukhamidov/pos-admin/internal/service"
	"github.com/abdukhamidov/pos-admin/internal/store/memory"
)

func newTestHandler() http.Handler {
	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopCatalogCache{}, nil, nil, 5)
	auth, err := NewAuthManager("test-secret", time.Hour, repo)
	if err != nil {
		panic(err)
	}
	return New(svc, auth, nil, "*").Handler()
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, handler http.Handler, username string, password string) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status = %d, body = %s", username, rec.Code, rec.Body.String())
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("empty access token")
	}
	return resp.AccessToken
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v (body %s)", err, rec.Body.String())
	}
	return resp.Error.Code
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	handler := newTestHandler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "seller",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRoutesRequireBearerToken(t *testing.T) {
	handler := newTestHandler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/pos/catalog", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestSellerBlockedFromAdminRoutes(t *testing.T) {
	handler := newTestHandler()
	token := login(t, handler, "seller", "seller123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/admin/users", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestAdminBlockedFromPOSRoutes(t *testing.T) {
	handler := newTestHandler()
	token := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/pos/catalog", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestFullCheckoutFlow(t *testing.T) {
	handler := newTestHandler()
	seller := login(t, handler, "seller", "seller123")
	admin := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/pos/shifts/open", seller, map[string]any{
		"opening_cash": 100000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open shift: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/pos/sales", seller, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("open sale: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var saleResp struct {
		Sale struct {
			ID     string `json:"id"`
			Number int    `json:"number"`
		} `json:"sale"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &saleResp); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if saleResp.Sale.Number != 1 {
		t.Fatalf("sale number = %d, want 1", saleResp.Sale.Number)
	}

	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/pos/sales/%s/items", saleResp.Sale.ID), seller, map[string]any{
		"product_id": "prod-cola",
		"qty":        2,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add item: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/pos/sales/%s/complete", saleResp.Sale.ID), seller, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var completeResp struct {
		Sale struct {
			Status string `json:"status"`
			Total  int64  `json:"total"`
		} `json:"sale"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &completeResp); err != nil {
		t.Fatalf("decode complete: %v", err)
	}
	if completeResp.Sale.Status != "COMPLETED" || completeResp.Sale.Total != 24000 {
		t.Fatalf("completed sale = %+v", completeResp.Sale)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/admin/inventory/available?product_id=prod-cola&warehouse_id=wh-main", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("available: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var availResp struct {
		Available int `json:"available"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &availResp); err != nil {
		t.Fatalf("decode available: %v", err)
	}
	if availResp.Available != 48 {
		t.Fatalf("available = %d, want 48", availResp.Available)
	}
}

func TestOversellReturnsStableErrorCode(t *testing.T) {
	handler := newTestHandler()
	seller := login(t, handler, "seller", "seller123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/pos/shifts/open", seller, map[string]any{})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open shift: status = %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/pos/sales", seller, nil)
	var saleResp struct {
		Sale struct {
			ID string `json:"id"`
		} `json:"sale"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &saleResp); err != nil {
		t.Fatalf("decode sale: %v", err)
	}

	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/pos/sales/%s/items", saleResp.Sale.ID), seller, map[string]any{
		"product_id": "prod-cola",
		"qty":        51,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if code := errorCode(t, rec); code != "INSUFFICIENT_STOCK" {
		t.Fatalf("code = %s, want INSUFFICIENT_STOCK", code)
	}
}

func TestShiftOpenTwiceHasStableCode(t *testing.T) {
	handler := newTestHandler()
	seller := login(t, handler, "seller", "seller123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/pos/shifts/open", seller, map[string]any{})
	if rec.Code != http.StatusCreated {
		t.Fatalf("first open: status = %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/pos/shifts/open", seller, map[string]any{})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second open: status = %d, want 409", rec.Code)
	}
	if code := errorCode(t, rec); code != "SHIFT_ALREADY_OPEN" {
		t.Fatalf("code = %s, want SHIFT_ALREADY_OPEN", code)
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	handler := newTestHandler()
	admin := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/admin/branches", admin, map[string]any{
		"name":       "North",
		"unexpected": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPOSCategoriesListsSeedCatalog(t *testing.T) {
	handler := newTestHandler()
	seller := login(t, handler, "seller", "seller123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/pos/categories", seller, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Categories []struct {
			Name string `json:"name"`
		} `json:"categories"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Categories) < 2 {
		t.Fatalf("categories = %d, want the seeded pair", len(resp.Categories))
	}
}

func TestLogoutNeedsToken(t *testing.T) {
	handler := newTestHandler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/logout", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous logout: status = %d, want 401", rec.Code)
	}

	seller := login(t, handler, "seller", "seller123")
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/auth/logout", seller, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
