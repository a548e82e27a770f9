package order

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dominv "github.com/kitewave/orderflow/internal/domain/inventory"
	domain "github.com/kitewave/orderflow/internal/domain/order"
	domoutbox "github.com/kitewave/orderflow/internal/domain/outbox"
	dompayment "github.com/kitewave/orderflow/internal/domain/payment"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (p *capturePublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) all() []domoutbox.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domoutbox.Event(nil), p.events...)
}

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*domain.Order)}
}

func (r *fakeOrderRepo) Insert(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[o.ID]; exists {
		return domain.ErrConflict
	}
	r.orders[o.ID] = o.Clone()
	return nil
}

func (r *fakeOrderRepo) Get(_ context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *fakeOrderRepo) Update(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; !ok {
		return domain.ErrNotFound
	}
	r.orders[o.ID] = o.Clone()
	return nil
}

type staticIDGenerator struct{ id string }

func (g staticIDGenerator) NewID() string { return g.id }

func TestSubmitOrderPersistsAndPublishes(t *testing.T) {
	repo := newFakeOrderRepo()
	pub := &capturePublisher{}
	uc := NewSubmitOrderUseCase(repo, staticIDGenerator{id: "order-1"}, pub, nil)

	result, err := uc.Execute(context.Background(), SubmitOrderInput{
		UserID:    "user-1",
		ProductID: "p1",
		Quantity:  3,
	})
	require.NoError(t, err)
	assert.Equal(t, "order-1", result.OrderID)
	assert.Equal(t, domain.StatusCreated, result.Status)

	stored, err := repo.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCreated, stored.Status)

	events := pub.all()
	require.Len(t, events, 1)
	created, ok := events[0].(domain.OrderCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, "order-1", created.OrderID)
	assert.Equal(t, "p1", created.ProductID)
	assert.Equal(t, 3, created.Quantity)
}

func TestSubmitOrderValidation(t *testing.T) {
	uc := NewSubmitOrderUseCase(newFakeOrderRepo(), staticIDGenerator{id: "order-1"}, nil, nil)

	cases := []struct {
		name  string
		input SubmitOrderInput
	}{
		{"missing user", SubmitOrderInput{ProductID: "p1", Quantity: 1}},
		{"missing product", SubmitOrderInput{UserID: "u1", Quantity: 1}},
		{"zero quantity", SubmitOrderInput{UserID: "u1", ProductID: "p1"}},
		{"negative quantity", SubmitOrderInput{UserID: "u1", ProductID: "p1", Quantity: -2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uc.Execute(context.Background(), tc.input)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSubmitOrderDuplicateID(t *testing.T) {
	repo := newFakeOrderRepo()
	uc := NewSubmitOrderUseCase(repo, staticIDGenerator{id: "order-1"}, nil, nil)

	input := SubmitOrderInput{UserID: "user-1", ProductID: "p1", Quantity: 1}
	_, err := uc.Execute(context.Background(), input)
	require.NoError(t, err)

	_, err = uc.Execute(context.Background(), input)
	assert.ErrorIs(t, err, ErrConflict)
}

func newStoredOrder(t *testing.T, repo *fakeOrderRepo, id string) {
	t.Helper()
	o, err := domain.New(id, "user-1", "p1", 2)
	require.NoError(t, err)
	require.NoError(t, repo.Insert(context.Background(), o))
}

func TestWorkerDrivesOrderThroughSaga(t *testing.T) {
	repo := newFakeOrderRepo()
	newStoredOrder(t, repo, "order-1")
	w := NewWorker(repo, nil, nil)

	require.NoError(t, w.handleInventoryReserved(context.Background(),
		dominv.NewInventoryReservedEvent("order-1", "user-1", 200)))
	stored, err := repo.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInventoryReserved, stored.Status)

	require.NoError(t, w.handlePaymentCompleted(context.Background(),
		dompayment.NewPaymentCompletedEvent("order-1", "payment-1", 200)))
	stored, err = repo.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.Equal(t, int64(200), stored.Amount)
}

func TestWorkerMarksOrderFailed(t *testing.T) {
	repo := newFakeOrderRepo()
	newStoredOrder(t, repo, "order-1")
	w := NewWorker(repo, nil, nil)

	require.NoError(t, w.handleOrderFailed(context.Background(),
		domain.NewOrderFailedEvent("order-1", "p1", 2, "insufficient stock")))

	stored, err := repo.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Equal(t, "insufficient stock", stored.FailureReason)
}

func TestWorkerIgnoresUnknownOrder(t *testing.T) {
	w := NewWorker(newFakeOrderRepo(), nil, nil)

	err := w.handleInventoryReserved(context.Background(),
		dominv.NewInventoryReservedEvent("missing", "user-1", 200))
	assert.NoError(t, err, "unknown order must not wedge the queue")
}

func TestWorkerAbsorbsStaleEventsOnFailedOrder(t *testing.T) {
	repo := newFakeOrderRepo()
	newStoredOrder(t, repo, "order-1")
	w := NewWorker(repo, nil, nil)

	require.NoError(t, w.handleOrderFailed(context.Background(),
		domain.NewOrderFailedEvent("order-1", "", 0, "payment limit exceeded")))
	require.NoError(t, w.handleInventoryReserved(context.Background(),
		dominv.NewInventoryReservedEvent("order-1", "user-1", 200)))
	require.NoError(t, w.handlePaymentCompleted(context.Background(),
		dompayment.NewPaymentCompletedEvent("order-1", "payment-1", 200)))

	stored, err := repo.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Equal(t, "payment limit exceeded", stored.FailureReason)
	assert.Zero(t, stored.Amount)
}
