package main

import (
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"hades-registry/internal/feed"
	"hades-registry/internal/registry"
	"hades-registry/internal/storage/memory"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	engine := registry.New(registry.Config{
		Store:        memory.NewRegistry(),
		Journal:      memory.NewJournal(),
		Logger:       log.New(os.Stderr, "[registry] ", log.LstdFlags),
		PricePerByte: 1,
	})
	if err := engine.Initialize(t.Context(), "authority.hades"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	hub := feed.NewHub()
	t.Cleanup(hub.Close)

	s := &Server{
		engine:  engine,
		journal: nil,
		hub:     hub,
		logger:  log.New(os.Stderr, "[server] ", log.LstdFlags),
		started: time.Now(),
	}
	srv := httptest.NewServer(s.routes())
	t.Cleanup(srv.Close)
	return s, srv
}

func postJSON(t *testing.T, srv *httptest.Server, path, body string, headers map[string]string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func errorBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return payload["error"]
}

func TestHandleMint_MalformedBody(t *testing.T) {
	_, srv := newTestServer(t)

	resp := postJSON(t, srv, "/v1/mint", "{not json", map[string]string{
		headerCaller: "authority.hades",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	// A broken body is a transport problem, not an account problem.
	msg := errorBody(t, resp)
	if !strings.Contains(msg, "parse request body") {
		t.Errorf("error = %q, want a parse failure message", msg)
	}
	if strings.Contains(msg, "invalid account") {
		t.Errorf("error = %q, must not report an account error", msg)
	}
}

func TestHandleMint_MissingCallerHeader(t *testing.T) {
	_, srv := newTestServer(t)

	resp := postJSON(t, srv, "/v1/mint", "{}", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if msg := errorBody(t, resp); !strings.Contains(msg, headerCaller) {
		t.Errorf("error = %q, want mention of the %s header", msg, headerCaller)
	}
}

func TestHandleMint_BadDepositHeader(t *testing.T) {
	_, srv := newTestServer(t)

	resp := postJSON(t, srv, "/v1/mint", "{}", map[string]string{
		headerCaller:  "authority.hades",
		headerDeposit: "not-a-number",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestHandleMint_ErrorStatusMapping(t *testing.T) {
	_, srv := newTestServer(t)
	body := `{"token_owner":"alice.hades","property_identifier":"p","split_identifier":"s","doc_url":"d","image_url":"i"}`

	// Non-authority caller
	resp := postJSON(t, srv, "/v1/mint", body, map[string]string{
		headerCaller:  "mallory.hades",
		headerDeposit: "1000000",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("non-authority status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}

	// Authority but no deposit attached
	resp = postJSON(t, srv, "/v1/mint", body, map[string]string{
		headerCaller: "authority.hades",
	})
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Errorf("no-deposit status = %d, want %d", resp.StatusCode, http.StatusPaymentRequired)
	}
}

func TestHandleMint_Success(t *testing.T) {
	_, srv := newTestServer(t)
	body := `{"token_owner":"alice.hades","property_identifier":"p","split_identifier":"s","doc_url":"d","image_url":"i"}`

	resp := postJSON(t, srv, "/v1/mint", body, map[string]string{
		headerCaller:  "authority.hades",
		headerDeposit: "1000000",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if token.TokenID != "1" || token.OwnerID != "alice.hades" {
		t.Errorf("token = %+v, want id 1 owned by alice.hades", token)
	}
}

func TestHandleGetToken_NotFound(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/tokens/never-minted")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestHandleTokenEvents_NoJournal(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/tokens/1/events")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotImplemented)
	}
}
