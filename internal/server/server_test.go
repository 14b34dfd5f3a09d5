package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, apiKey string) *Server {
	t.Helper()
	return New(&Server{APIKey: apiKey})
}

func TestHandleListModels(t *testing.T) {
	s := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var list struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Data) != 3 {
		t.Fatalf("expected 3 models, got %d", len(list.Data))
	}
}

func TestHandleGetModelNotFound(t *testing.T) {
	s := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/v1/models/nonexistent-model", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleGetModelFound(t *testing.T) {
	s := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/v1/models/claude-sonnet-4-5", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

// TestMessagesInvalidModelReturns400 is spec §8 scenario 5, literal: an
// unknown model name must produce a 400 invalid_request_error before any
// upstream call is attempted.
func TestMessagesInvalidModelReturns400(t *testing.T) {
	s := newTestServer(t, "")
	body := `{"model":"not-a-real-model","max_tokens":100,"messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var env struct {
		Type  string `json:"type"`
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Type != "invalid_request_error" {
		t.Fatalf("error type = %q, want invalid_request_error", env.Error.Type)
	}
}

func TestMessagesMissingMaxTokensReturns400(t *testing.T) {
	s := newTestServer(t, "")
	body := `{"model":"claude-sonnet-4-5","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestMessagesEmptyMessagesReturns400(t *testing.T) {
	s := newTestServer(t, "")
	body := `{"model":"claude-sonnet-4-5","max_tokens":100,"messages":[]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestMessagesRequiresAPIKeyWhenConfigured(t *testing.T) {
	s := newTestServer(t, "secret-key")
	body := `{"model":"claude-sonnet-4-5","max_tokens":100,"messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without an api key", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewBufferString(body))
	req2.Header.Set("x-api-key", "secret-key")
	rec2 := httptest.NewRecorder()
	s.ServeHTTP(rec2, req2)
	// Passes auth and validation; fails later for lack of a real token
	// manager/upstream, which is fine — this asserts the auth gate itself.
	if rec2.Code == http.StatusUnauthorized {
		t.Fatalf("valid api key should not be rejected")
	}
}

func TestModelsRouteIgnoresAPIKeyRequirement(t *testing.T) {
	s := newTestServer(t, "secret-key")
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (models route has no api key gate)", rec.Code)
	}
}
