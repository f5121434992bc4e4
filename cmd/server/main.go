// Package main runs the Hades registry HTTP service:
// - Minting: property-unit and KYC identity issuance
// - Queries: token lookup, owner enumeration, contract descriptor
// - Live feed: WebSocket stream of mint events
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"hades-registry/internal/domain"
	"hades-registry/internal/feed"
	"hades-registry/internal/observability"
	"hades-registry/internal/registry"
	"hades-registry/internal/storage"
	chstore "hades-registry/internal/storage/clickhouse"
	"hades-registry/internal/storage/memory"
	"hades-registry/internal/storage/migrations"
	pgstore "hades-registry/internal/storage/postgres"
)

// Caller identity and attached payment arrive as headers from the
// authenticating proxy in front of this service.
const (
	headerCaller  = "X-Caller-Account"
	headerDeposit = "X-Attached-Deposit"
)

// errBadRequest marks transport-level failures (malformed body or headers)
// so they do not masquerade as registry validation errors.
var errBadRequest = errors.New("bad request")

// Server holds the wired components of the registry service.
type Server struct {
	engine  *registry.Engine
	journal storage.MintJournal
	hub     *feed.Hub
	logger  *log.Logger
	started time.Time
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	listenAddr := flag.String("listen", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional, enables the mint journal)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	owner := flag.String("owner", os.Getenv("REGISTRY_OWNER"), "Initial registry authority account")
	pricePerByte := flag.Uint64("price-per-byte", envUint64("PRICE_PER_BYTE", 10000), "Storage price charged per byte minted")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}
	if *owner == "" {
		logger.Fatal("--owner is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, journal, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	metrics := observability.NewMetrics("hades_registry")

	hub := feed.NewHub(
		feed.WithLogger(log.New(os.Stdout, "[feed] ", log.LstdFlags)),
		feed.WithSubscriberGauge(metrics.FeedSubscribers),
	)
	defer hub.Close()

	engine := registry.New(registry.Config{
		Store:        store,
		Journal:      journal,
		Sink:         hub,
		Metrics:      metrics,
		Logger:       log.New(os.Stdout, "[registry] ", log.LstdFlags),
		PricePerByte: *pricePerByte,
	})

	// First boot initializes the registry; later boots find it populated.
	err = engine.Initialize(ctx, domain.AccountID(*owner))
	switch {
	case err == nil:
		logger.Printf("Registry initialized with authority %s", *owner)
	case errors.Is(err, storage.ErrDuplicateKey):
		logger.Println("Registry already initialized")
	default:
		logger.Fatalf("Failed to initialize registry: %v", err)
	}

	server := &Server{
		engine:  engine,
		journal: journal,
		hub:     hub,
		logger:  logger,
		started: time.Now(),
	}

	httpServer := &http.Server{
		Addr:    *listenAddr,
		Handler: server.routes(),
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Shutdown error: %v", err)
		}
		cancel()
	}()

	logger.Printf("Starting HTTP server on %s", *listenAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("HTTP server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores builds the registry store and the optional mint journal.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.Registry, storage.MintJournal, func(), error) {
	if useMemory {
		return memory.NewRegistry(), memory.NewJournal(), func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}

	store := pgstore.NewRegistry(pool)

	// ClickHouse journal is optional
	if clickhouseDSN == "" {
		return store, nil, func() { pool.Close() }, nil
	}

	chConn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	if err := migrations.RunClickhouseMigrations(ctx, chConn); err != nil {
		chConn.Close()
		pool.Close()
		return nil, nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
	}

	journal := chstore.NewMintJournalStore(chConn)
	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return store, journal, cleanup, nil
}

// routes wires the HTTP API.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("GET /metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("GET /status", s.handleStatus)

	// Minting
	mux.HandleFunc("POST /v1/mint", s.handleMintPropertyUnit)
	mux.HandleFunc("POST /v1/register", s.handleRegisterIdentity)

	// Administration
	mux.HandleFunc("POST /v1/owner", s.handleSetOwner)

	// Queries
	mux.HandleFunc("GET /v1/contract", s.handleContract)
	mux.HandleFunc("GET /v1/tokens", s.handleTokensOfOwner)
	mux.HandleFunc("GET /v1/tokens/{id}", s.handleGetToken)
	mux.HandleFunc("GET /v1/tokens/{id}/events", s.handleTokenEvents)

	// Live mint feed
	mux.Handle("GET /ws/mints", s.hub)

	return mux
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	Authority   string `json:"authority"`
	Subscribers int    `json:"feed_subscribers"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	authority, err := s.engine.Authority(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Status:      "running",
		Uptime:      time.Since(s.started).String(),
		Authority:   string(authority),
		Subscribers: s.hub.SubscriberCount(),
	})
}

// MintPropertyUnitRequest is the JSON body of POST /v1/mint.
type MintPropertyUnitRequest struct {
	TokenOwner         string `json:"token_owner"`
	PropertyIdentifier string `json:"property_identifier"`
	SplitIdentifier    string `json:"split_identifier"`
	DocURL             string `json:"doc_url"`
	ImageURL           string `json:"image_url"`
}

func (s *Server) handleMintPropertyUnit(w http.ResponseWriter, r *http.Request) {
	call, err := callFromRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req MintPropertyUnitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: parse request body: %v", errBadRequest, err))
		return
	}

	token, err := s.engine.MintPropertyUnit(r.Context(), call, registry.PropertyUnitInput{
		TokenOwner:         domain.AccountID(req.TokenOwner),
		PropertyIdentifier: req.PropertyIdentifier,
		SplitIdentifier:    req.SplitIdentifier,
		DocURL:             req.DocURL,
		ImageURL:           req.ImageURL,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse(token))
}

// RegisterIdentityRequest is the JSON body of POST /v1/register.
type RegisterIdentityRequest struct {
	PassportURL string `json:"passport_url"`
	MetadataURL string `json:"metadata_url"`
	FullName    string `json:"full_name"`
	AccountID   string `json:"account_id,omitempty"`
}

func (s *Server) handleRegisterIdentity(w http.ResponseWriter, r *http.Request) {
	call, err := callFromRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req RegisterIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: parse request body: %v", errBadRequest, err))
		return
	}

	token, err := s.engine.RegisterIdentity(r.Context(), call, registry.IdentityInput{
		PassportURL: req.PassportURL,
		MetadataURL: req.MetadataURL,
		FullName:    req.FullName,
		AccountID:   domain.AccountID(req.AccountID),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse(token))
}

// SetOwnerRequest is the JSON body of POST /v1/owner.
type SetOwnerRequest struct {
	NewOwner string `json:"new_owner"`
}

func (s *Server) handleSetOwner(w http.ResponseWriter, r *http.Request) {
	call, err := callFromRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req SetOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: parse request body: %v", errBadRequest, err))
		return
	}

	if err := s.engine.SetOwner(r.Context(), call, domain.AccountID(req.NewOwner)); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authority": req.NewOwner})
}

func (s *Server) handleContract(w http.ResponseWriter, r *http.Request) {
	meta, err := s.engine.ContractMetadata(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.engine.GetToken(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(token))
}

func (s *Server) handleTokensOfOwner(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, "owner query parameter is required", http.StatusBadRequest)
		return
	}

	tokens, err := s.engine.TokensOfOwner(r.Context(), domain.AccountID(owner))
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := make([]*TokenResponse, 0, len(tokens))
	for _, t := range tokens {
		resp = append(resp, tokenResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTokenEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "mint journal is not configured", http.StatusNotImplemented)
		return
	}

	events, err := s.journal.EventsForToken(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if events == nil {
		events = []*domain.MintEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// TokenResponse is the JSON shape of a minted token.
type TokenResponse struct {
	TokenID  string                `json:"token_id"`
	OwnerID  string                `json:"owner_id"`
	Metadata TokenMetadataResponse `json:"metadata"`
}

type TokenMetadataResponse struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	Media         string `json:"media,omitempty"`
	MediaHash     string `json:"media_hash,omitempty"`
	Reference     string `json:"reference,omitempty"`
	ReferenceHash string `json:"reference_hash,omitempty"`
	Copies        uint64 `json:"copies"`
}

func tokenResponse(t *domain.Token) *TokenResponse {
	resp := &TokenResponse{
		TokenID: t.TokenID,
		OwnerID: string(t.OwnerID),
	}
	if t.Metadata != nil {
		resp.Metadata = TokenMetadataResponse{
			Title:         t.Metadata.Title,
			Description:   t.Metadata.Description,
			Media:         t.Metadata.Media,
			MediaHash:     t.Metadata.MediaHash,
			Reference:     t.Metadata.Reference,
			ReferenceHash: t.Metadata.ReferenceHash,
			Copies:        t.Metadata.Copies,
		}
	}
	return resp
}

// callFromRequest builds the caller context from trusted proxy headers.
func callFromRequest(r *http.Request) (registry.Call, error) {
	caller := domain.AccountID(r.Header.Get(headerCaller))
	if caller == "" {
		return registry.Call{}, fmt.Errorf("%w: missing %s header", errBadRequest, headerCaller)
	}

	var deposit uint64
	if raw := r.Header.Get(headerDeposit); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return registry.Call{}, fmt.Errorf("%w: bad %s header: %v", errBadRequest, headerDeposit, err)
		}
		deposit = parsed
	}

	return registry.Call{Caller: caller, Deposit: deposit}, nil
}

// writeError maps domain errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, registry.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, registry.ErrInsufficientDeposit):
		status = http.StatusPaymentRequired
	case errors.Is(err, registry.ErrTokenNotFound), errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, registry.ErrDuplicateToken), errors.Is(err, storage.ErrDuplicateKey):
		status = http.StatusConflict
	case errors.Is(err, registry.ErrInvalidName),
		errors.Is(err, registry.ErrInvalidAccount),
		errors.Is(err, storage.ErrInvalidInput),
		errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.logger.Printf("Internal error: %v", err)
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// envOr returns the env var value or a fallback.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envUint64 returns the env var parsed as uint64 or a fallback.
func envUint64(key string, fallback uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
