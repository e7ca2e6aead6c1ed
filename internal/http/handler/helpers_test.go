package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/buymart/dealflow-api/internal/auth"
	"github.com/buymart/dealflow-api/internal/config"
	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/escrow"
	"github.com/buymart/dealflow-api/internal/http/handler"
	"github.com/buymart/dealflow-api/internal/http/middleware"
	"github.com/buymart/dealflow-api/internal/http/router"
	"github.com/buymart/dealflow-api/internal/repository"
	"github.com/buymart/dealflow-api/internal/service"
	"github.com/buymart/dealflow-api/internal/storage"
	"github.com/buymart/dealflow-api/internal/testutil"
	"github.com/buymart/dealflow-api/internal/timeline"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testJWTSecret = "handler-test-secret"
	testAPIKey    = "handler-test-key"
)

// stubProvider is an in-memory escrow provider that accepts every call
type stubProvider struct {
	mu       sync.Mutex
	seq      int
	statuses map[string]domain.EscrowStatus
	failOpen error
}

func newStubProvider() *stubProvider {
	return &stubProvider{statuses: make(map[string]domain.EscrowStatus)}
}

func (p *stubProvider) Open(context.Context, escrow.OpenRequest) (*escrow.Transaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOpen != nil {
		return nil, p.failOpen
	}
	p.seq++
	id := fmt.Sprintf("esc-%d", p.seq)
	p.statuses[id] = domain.EscrowStatusCreated
	return &escrow.Transaction{ID: id, Status: domain.EscrowStatusCreated}, nil
}

func (p *stubProvider) move(id string, to domain.EscrowStatus) (*escrow.Transaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[id] = to
	return &escrow.Transaction{ID: id, Status: to}, nil
}

func (p *stubProvider) Fund(_ context.Context, id string, _ escrow.FundRequest) (*escrow.Transaction, error) {
	return p.move(id, domain.EscrowStatusFunded)
}

func (p *stubProvider) Release(_ context.Context, id string, _ escrow.ReleaseRequest) (*escrow.Transaction, error) {
	return p.move(id, domain.EscrowStatusReleased)
}

func (p *stubProvider) Cancel(_ context.Context, id string, _ escrow.CancelRequest) (*escrow.Transaction, error) {
	return p.move(id, domain.EscrowStatusCancelled)
}

func (p *stubProvider) GetStatus(_ context.Context, id string) (*escrow.Transaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &escrow.Transaction{ID: id, Status: p.statuses[id]}, nil
}

// testServer serves the full API router over one sqlite database
type testServer struct {
	t             *testing.T
	db            *gorm.DB
	handler       http.Handler
	provider      *stubProvider
	notifications *service.NotificationService
	storage       *deadlineStorage
	broker        uuid.UUID
}

// deadlineStorage records whether each storage call ran under a request deadline
type deadlineStorage struct {
	storage.Storage
	mu        sync.Mutex
	deadlines map[string]bool
}

func (s *deadlineStorage) record(ctx context.Context, op string) {
	_, ok := ctx.Deadline()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadlines[op] = ok
}

func (s *deadlineStorage) hadDeadline(op string) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, seen := s.deadlines[op]
	return ok, seen
}

func (s *deadlineStorage) Put(ctx context.Context, key, contentType string, data io.Reader) (int64, error) {
	s.record(ctx, "put")
	return s.Storage.Put(ctx, key, contentType, data)
}

func (s *deadlineStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.record(ctx, "get")
	return s.Storage.Get(ctx, key)
}

func testConfig() *config.Config {
	return &config.Config{
		App:       config.AppConfig{Name: "dealflow-api", Environment: "development", Port: 8080},
		Auth:      config.AuthConfig{APIKey: testAPIKey, JWTSecret: testJWTSecret},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Security:  config.SecurityConfig{ContentTypeNosniff: true, FrameOptions: "DENY"},
		CORS:      config.CORSConfig{AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"}},
		Server:    config.ServerConfig{RequestTimeout: 30},
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	cfg := testConfig()
	table := timeline.DefaultTable()

	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := &deadlineStorage{Storage: local, deadlines: make(map[string]bool)}

	dealRepo := repository.NewDealRepository(db)
	milestoneRepo := repository.NewMilestoneRepository(db)
	locker := service.NewDealLocker()
	provider := newStubProvider()

	notifications := service.NewNotificationService(repository.NewNotificationRepository(db), logger)
	activities := service.NewActivityService(repository.NewActivityRepository(db), logger)
	alerts := service.NewAlertService(dealRepo, milestoneRepo, notifications, locker, service.DefaultLookaheadDays, logger)
	milestones := service.NewMilestoneService(db, milestoneRepo, dealRepo, activities, alerts, table, locker, logger)
	documents := service.NewDocumentService(repository.NewDocumentRepository(db), dealRepo, activities, store, table, locker, 1<<20, logger)
	escrowService := service.NewEscrowService(
		db,
		repository.NewEscrowAccountRepository(db),
		repository.NewEscrowTransactionRepository(db),
		dealRepo,
		provider,
		activities,
		locker,
		&config.EscrowConfig{Provider: "escrow.com", Platform: "dealflow"},
		logger,
	)
	deals := service.NewDealService(
		db,
		dealRepo,
		repository.NewDealStatusHistoryRepository(db),
		repository.NewNumberSequenceRepository(db),
		milestones,
		documents,
		activities,
		alerts,
		service.NewEscrowPolicy(nil, escrowService, logger),
		table,
		locker,
		logger,
	)
	timelines := service.NewTimelineService(dealRepo, milestoneRepo, service.DefaultLookaheadDays, logger)

	rt := router.NewRouter(cfg, logger, db, auth.NewMiddleware(cfg, logger), middleware.NewRateLimiter(&cfg.RateLimit, logger), router.Handlers{
		Deal:         handler.NewDealHandler(deals, logger),
		Timeline:     handler.NewTimelineHandler(milestones, timelines, alerts, logger),
		Document:     handler.NewDocumentHandler(documents, 1, logger),
		Escrow:       handler.NewEscrowHandler(escrowService, logger),
		Notification: handler.NewNotificationHandler(notifications, logger),
	})

	return &testServer{
		t:             t,
		db:            db,
		handler:       rt.Setup(),
		provider:      provider,
		notifications: notifications,
		storage:       store,
		broker:        uuid.New(),
	}
}

// token signs an access token for userID with the given roles
func token(t *testing.T, userID uuid.UUID, roles ...auth.Role) string {
	t.Helper()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID.String(),
		"name":  "Test User",
		"email": "user@example.com",
		"roles": names,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

// request performs a call as the given bearer token. A nil body sends none.
func (s *testServer) request(method, path, bearer string, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

// requestWithAPIKey performs a call as the system caller
func (s *testServer) requestWithAPIKey(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("x-api-key", testAPIKey)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

// asBroker performs a call as the server's broker
func (s *testServer) asBroker(method, path string, body any) *httptest.ResponseRecorder {
	return s.request(method, path, token(s.t, s.broker, auth.RoleBroker), body)
}

// createDeal opens a deal through the API and returns it
func (s *testServer) createDeal(buyer, seller uuid.UUID) domain.DealDTO {
	s.t.Helper()
	w := s.asBroker(http.MethodPost, "/api/v1/deals", map[string]any{
		"buyerId":      buyer,
		"sellerId":     seller,
		"listingId":    uuid.New(),
		"listingTitle": "Corner Bakery",
		"assigneeId":   s.broker,
		"initialOffer": "250000",
		"offerDate":    "2024-01-01T00:00:00Z",
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[domain.DealDTO](s.t, w)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out), w.Body.String())
	return out
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) domain.APIError {
	t.Helper()
	return decode[domain.APIError](t, w)
}
