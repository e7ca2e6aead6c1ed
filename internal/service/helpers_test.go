package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/buymart/dealflow-api/internal/auth"
	"github.com/buymart/dealflow-api/internal/config"
	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/escrow"
	"github.com/buymart/dealflow-api/internal/repository"
	"github.com/buymart/dealflow-api/internal/service"
	"github.com/buymart/dealflow-api/internal/storage"
	"github.com/buymart/dealflow-api/internal/testutil"
	"github.com/buymart/dealflow-api/internal/timeline"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeProvider is an in-memory escrow provider. Failures are one-shot; an
// applied failure changes the remote status before returning the error, which
// models a call accepted by the provider whose response was lost.
type fakeProvider struct {
	mu       sync.Mutex
	seq      int
	statuses map[string]domain.EscrowStatus
	failures map[string]providerFailure
	calls    map[string]int
	opened   []escrow.OpenRequest
	released []escrow.ReleaseRequest
}

type providerFailure struct {
	err     error
	applied bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		statuses: make(map[string]domain.EscrowStatus),
		failures: make(map[string]providerFailure),
		calls:    make(map[string]int),
	}
}

func (p *fakeProvider) fail(action string, err error, applied bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[action] = providerFailure{err: err, applied: applied}
}

func (p *fakeProvider) setStatus(id string, status domain.EscrowStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[id] = status
}

func (p *fakeProvider) callCount(action string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[action]
}

// step records the call and consumes a pending failure. It reports whether the
// remote status should change and the error to return.
func (p *fakeProvider) step(action string) (bool, error) {
	p.calls[action]++
	f, ok := p.failures[action]
	if !ok {
		return true, nil
	}
	delete(p.failures, action)
	return f.applied, f.err
}

func (p *fakeProvider) Open(_ context.Context, req escrow.OpenRequest) (*escrow.Transaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.step("open"); err != nil {
		return nil, err
	}
	p.seq++
	id := fmt.Sprintf("esc-%d", p.seq)
	p.statuses[id] = domain.EscrowStatusCreated
	p.opened = append(p.opened, req)
	return &escrow.Transaction{ID: id, Status: domain.EscrowStatusCreated}, nil
}

func (p *fakeProvider) move(action, id string, to domain.EscrowStatus) (*escrow.Transaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	apply, err := p.step(action)
	if apply {
		p.statuses[id] = to
	}
	if err != nil {
		return nil, err
	}
	return &escrow.Transaction{ID: id, Status: to}, nil
}

func (p *fakeProvider) Fund(_ context.Context, id string, _ escrow.FundRequest) (*escrow.Transaction, error) {
	return p.move("fund", id, domain.EscrowStatusFunded)
}

func (p *fakeProvider) Release(_ context.Context, id string, req escrow.ReleaseRequest) (*escrow.Transaction, error) {
	p.mu.Lock()
	p.released = append(p.released, req)
	p.mu.Unlock()
	return p.move("release", id, domain.EscrowStatusReleased)
}

func (p *fakeProvider) Cancel(_ context.Context, id string, _ escrow.CancelRequest) (*escrow.Transaction, error) {
	return p.move("cancel", id, domain.EscrowStatusCancelled)
}

func (p *fakeProvider) GetStatus(_ context.Context, id string) (*escrow.Transaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.step("status"); err != nil {
		return nil, err
	}
	return &escrow.Transaction{ID: id, Status: p.statuses[id]}, nil
}

// fakeSink records notifications instead of delivering them
type fakeSink struct {
	mu   sync.Mutex
	err  error
	sent []sentNotification
}

type sentNotification struct {
	Recipients []uuid.UUID
	Kind       string
	Title      string
	Message    string
	Payload    map[string]any
}

func (s *fakeSink) Notify(_ context.Context, recipients []uuid.UUID, kind, title, message string, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentNotification{
		Recipients: recipients,
		Kind:       kind,
		Title:      title,
		Message:    message,
		Payload:    payload,
	})
	return nil
}

func (s *fakeSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, n := range s.sent {
		out = append(out, n.Kind)
	}
	return out
}

func (s *fakeSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}

// harness wires every service over one sqlite database with fake collaborators
type harness struct {
	t        *testing.T
	db       *gorm.DB
	now      time.Time
	locker   *service.DealLocker
	provider *fakeProvider
	sink     *fakeSink
	store    storage.Storage

	activities    *service.ActivityService
	alerts        *service.AlertService
	milestones    *service.MilestoneService
	documents     *service.DocumentService
	escrow        *service.EscrowService
	deals         *service.DealService
	timeline      *service.TimelineService
	notifications *service.NotificationService
}

const testMaxUploadBytes = 1 << 20

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	table := timeline.DefaultTable()

	h := &harness{
		t:        t,
		db:       db,
		now:      testutil.OfferDate.Add(12 * time.Hour),
		locker:   service.NewDealLocker(),
		provider: newFakeProvider(),
		sink:     &fakeSink{},
	}
	clock := func() time.Time { return h.now }

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	h.store = store

	dealRepo := repository.NewDealRepository(db)
	milestoneRepo := repository.NewMilestoneRepository(db)

	h.activities = service.NewActivityService(repository.NewActivityRepository(db), logger).WithClock(clock)
	h.alerts = service.NewAlertService(dealRepo, milestoneRepo, h.sink, h.locker, service.DefaultLookaheadDays, logger).WithClock(clock)
	h.milestones = service.NewMilestoneService(db, milestoneRepo, dealRepo, h.activities, h.alerts, table, h.locker, logger).WithClock(clock)
	h.documents = service.NewDocumentService(repository.NewDocumentRepository(db), dealRepo, h.activities, store, table, h.locker, testMaxUploadBytes, logger)
	h.escrow = service.NewEscrowService(
		db,
		repository.NewEscrowAccountRepository(db),
		repository.NewEscrowTransactionRepository(db),
		dealRepo,
		h.provider,
		h.activities,
		h.locker,
		&config.EscrowConfig{Provider: "escrow.com", Platform: "dealflow"},
		logger,
	).WithClock(clock)
	h.deals = service.NewDealService(
		db,
		dealRepo,
		repository.NewDealStatusHistoryRepository(db),
		repository.NewNumberSequenceRepository(db),
		h.milestones,
		h.documents,
		h.activities,
		h.alerts,
		service.NewEscrowPolicy(nil, nil, logger),
		table,
		h.locker,
		logger,
	).WithClock(clock)
	h.timeline = service.NewTimelineService(dealRepo, milestoneRepo, service.DefaultLookaheadDays, logger).WithClock(clock)
	h.notifications = service.NewNotificationService(repository.NewNotificationRepository(db), logger)

	return h
}

// withPolicy rebuilds the deal service with the default escrow policy enabled
func (h *harness) withPolicy() *harness {
	logger := zap.NewNop()
	clock := func() time.Time { return h.now }
	h.deals = service.NewDealService(
		h.db,
		repository.NewDealRepository(h.db),
		repository.NewDealStatusHistoryRepository(h.db),
		repository.NewNumberSequenceRepository(h.db),
		h.milestones,
		h.documents,
		h.activities,
		h.alerts,
		service.NewEscrowPolicy(nil, h.escrow, logger),
		timeline.DefaultTable(),
		h.locker,
		logger,
	).WithClock(clock)
	return h
}

// alertsWith builds an alert service that delivers to sink
func (h *harness) alertsWith(sink service.NotificationSink) *service.AlertService {
	return service.NewAlertService(
		repository.NewDealRepository(h.db),
		repository.NewMilestoneRepository(h.db),
		sink,
		h.locker,
		service.DefaultLookaheadDays,
		zap.NewNop(),
	).WithClock(func() time.Time { return h.now })
}

// createDeal opens a deal on the reference offer date through the deal service
func (h *harness) createDeal(mutate ...func(*domain.CreateDealRequest)) *domain.Deal {
	h.t.Helper()
	offer := testutil.OfferDate
	assignee := uuid.New()
	req := &domain.CreateDealRequest{
		BuyerID:      uuid.New(),
		SellerID:     uuid.New(),
		ListingID:    uuid.New(),
		ListingTitle: "Corner Bakery",
		AssigneeID:   &assignee,
		InitialOffer: decimal.NewFromInt(500000),
		OfferDate:    &offer,
	}
	for _, fn := range mutate {
		fn(req)
	}
	deal, err := h.deals.Create(context.Background(), req)
	require.NoError(h.t, err)
	return deal
}

// openEscrow creates an escrow account for the deal's buyer and seller
func (h *harness) openEscrow(deal *domain.Deal, amount int64) *domain.EscrowAccount {
	h.t.Helper()
	account, err := h.escrow.Create(context.Background(), deal.ID, escrowRequest(deal, amount))
	require.NoError(h.t, err)
	return account
}

func escrowRequest(deal *domain.Deal, amount int64) *domain.CreateEscrowRequest {
	return &domain.CreateEscrowRequest{
		Buyer:  domain.EscrowParty{UserID: deal.BuyerID, FirstName: "Bea", LastName: "Buyer", Email: "buyer@example.com"},
		Seller: domain.EscrowParty{UserID: deal.SellerID, FirstName: "Sam", LastName: "Seller", Email: "seller@example.com"},
		Amount: decimal.NewFromInt(amount),
	}
}

func (h *harness) transition(deal *domain.Deal, status domain.DealStatus) *service.TransitionResult {
	h.t.Helper()
	result, err := h.deals.Transition(context.Background(), deal.ID, &domain.TransitionDealRequest{Status: status})
	require.NoError(h.t, err)
	return result
}

func userCtx(id uuid.UUID, roles ...auth.Role) context.Context {
	return auth.WithUserContext(context.Background(), &auth.UserContext{
		UserID:      id,
		DisplayName: "Test User",
		Roles:       roles,
		AuthMethod:  auth.AuthMethodJWT,
	})
}

func count(t *testing.T, db *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

var pdfContent = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")

// escrowWith builds an escrow service over the harness database that talks to provider
func (h *harness) escrowWith(provider service.EscrowProvider) *service.EscrowService {
	return service.NewEscrowService(
		h.db,
		repository.NewEscrowAccountRepository(h.db),
		repository.NewEscrowTransactionRepository(h.db),
		repository.NewDealRepository(h.db),
		provider,
		h.activities,
		h.locker,
		&config.EscrowConfig{Provider: "escrow.com", Platform: "dealflow"},
		zap.NewNop(),
	).WithClock(func() time.Time { return h.now })
}

// failInserts makes every insert into table fail until the returned func is called
func failInserts(t *testing.T, db *gorm.DB, table string) func() {
	t.Helper()
	var mu sync.Mutex
	active := true
	err := db.Callback().Create().Before("gorm:create").Register("test:fail_"+table, func(tx *gorm.DB) {
		mu.Lock()
		defer mu.Unlock()
		if active && tx.Statement.Table == table {
			_ = tx.AddError(fmt.Errorf("insert into %s refused", table))
		}
	})
	require.NoError(t, err)
	return func() {
		mu.Lock()
		defer mu.Unlock()
		active = false
	}
}
