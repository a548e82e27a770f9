package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dominv "github.com/kitewave/orderflow/internal/domain/inventory"
	domorder "github.com/kitewave/orderflow/internal/domain/order"
	domoutbox "github.com/kitewave/orderflow/internal/domain/outbox"
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

type fakeInventoryRepo struct {
	mu    sync.Mutex
	items map[string]*dominv.Item
}

func newFakeInventoryRepo() *fakeInventoryRepo {
	return &fakeInventoryRepo{items: make(map[string]*dominv.Item)}
}

func (r *fakeInventoryRepo) seed(t *testing.T, productID string, quantity int, unitPrice int64) {
	t.Helper()
	item, err := dominv.NewItem(productID, quantity, unitPrice)
	require.NoError(t, err)
	r.items[productID] = item
}

func (r *fakeInventoryRepo) Reserve(_ context.Context, productID string, quantity int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[productID]
	if !ok {
		return 0, dominv.ErrNotFound
	}
	if err := item.Reserve(quantity); err != nil {
		return 0, err
	}
	return item.UnitPrice, nil
}

func (r *fakeInventoryRepo) Release(_ context.Context, productID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[productID]
	if !ok {
		return dominv.ErrNotFound
	}
	return item.Release(quantity)
}

func (r *fakeInventoryRepo) Get(_ context.Context, productID string) (*dominv.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[productID]
	if !ok {
		return nil, dominv.ErrNotFound
	}
	return item.Clone(), nil
}

func (r *fakeInventoryRepo) Save(_ context.Context, item *dominv.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ProductID] = item.Clone()
	return nil
}

type fakeReservationStore struct {
	mu           sync.Mutex
	reservations map[string]Reservation
}

func newFakeReservationStore() *fakeReservationStore {
	return &fakeReservationStore{reservations: make(map[string]Reservation)}
}

func (s *fakeReservationStore) MarkReserved(_ context.Context, res Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.reservations[res.OrderID]; !exists {
		s.reservations[res.OrderID] = res
	}
	return nil
}

func (s *fakeReservationStore) Find(_ context.Context, orderID string) (Reservation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.reservations[orderID]
	return res, ok, nil
}

func (s *fakeReservationStore) ClaimRelease(_ context.Context, orderID string) (Reservation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.reservations[orderID]
	if ok && res.Released {
		return Reservation{}, false, nil
	}
	if !ok {
		s.reservations[orderID] = Reservation{OrderID: orderID, Released: true}
		return Reservation{}, false, nil
	}
	claimed := res
	res.Released = true
	s.reservations[orderID] = res
	return claimed, true, nil
}

func createdEvent(orderID string, quantity int) domorder.OrderCreatedEvent {
	return domorder.NewOrderCreatedEvent(&domorder.Order{
		ID:        orderID,
		UserID:    "user-1",
		ProductID: "p1",
		Quantity:  quantity,
	})
}

func TestReserveStockEmitsReservedWithComputedAmount(t *testing.T) {
	repo := newFakeInventoryRepo()
	repo.seed(t, "p1", 10, 100)
	store := newFakeReservationStore()
	pub := &capturePublisher{}
	uc := NewReserveStockUseCase(repo, store, pub, nil)

	result, err := uc.Execute(context.Background(), createdEvent("order-1", 3))
	require.NoError(t, err)
	assert.True(t, result.Reserved)
	assert.Equal(t, int64(300), result.Amount)

	events := pub.all()
	require.Len(t, events, 1)
	reserved, ok := events[0].(dominv.InventoryReservedEvent)
	require.True(t, ok)
	assert.Equal(t, "order-1", reserved.OrderID)
	assert.Equal(t, "user-1", reserved.UserID)
	assert.Equal(t, int64(300), reserved.Amount)

	item, err := repo.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 7, item.Quantity)
}

func TestReserveStockInsufficientEmitsOrderFailed(t *testing.T) {
	repo := newFakeInventoryRepo()
	repo.seed(t, "p1", 2, 100)
	pub := &capturePublisher{}
	uc := NewReserveStockUseCase(repo, newFakeReservationStore(), pub, nil)

	result, err := uc.Execute(context.Background(), createdEvent("order-1", 5))
	require.Error(t, err)
	assert.False(t, result.Reserved)
	assert.Equal(t, dominv.FailureReasonInsufficientStock, result.FailureReason)

	events := pub.all()
	require.Len(t, events, 1)
	failed, ok := events[0].(domorder.OrderFailedEvent)
	require.True(t, ok)
	assert.Equal(t, "order-1", failed.OrderID)
	assert.Equal(t, dominv.FailureReasonInsufficientStock, failed.Reason)

	item, err := repo.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, item.Quantity, "rejected order must not change stock")
}

func TestReserveStockUnknownProductEmitsOrderFailed(t *testing.T) {
	pub := &capturePublisher{}
	uc := NewReserveStockUseCase(newFakeInventoryRepo(), newFakeReservationStore(), pub, nil)

	result, err := uc.Execute(context.Background(), createdEvent("order-1", 1))
	require.Error(t, err)
	assert.Equal(t, dominv.FailureReasonNotFound, result.FailureReason)

	events := pub.all()
	require.Len(t, events, 1)
	failed, ok := events[0].(domorder.OrderFailedEvent)
	require.True(t, ok)
	assert.Equal(t, dominv.FailureReasonNotFound, failed.Reason)
}

func TestReserveStockRedeliveryDoesNotDeductTwice(t *testing.T) {
	repo := newFakeInventoryRepo()
	repo.seed(t, "p1", 10, 100)
	pub := &capturePublisher{}
	uc := NewReserveStockUseCase(repo, newFakeReservationStore(), pub, nil)

	evt := createdEvent("order-1", 3)
	_, err := uc.Execute(context.Background(), evt)
	require.NoError(t, err)
	result, err := uc.Execute(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, int64(300), result.Amount)

	item, err := repo.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 7, item.Quantity, "redelivery must not deduct stock again")

	events := pub.all()
	require.Len(t, events, 2, "redelivery re-emits the reserved event")
	for _, e := range events {
		_, ok := e.(dominv.InventoryReservedEvent)
		assert.True(t, ok)
	}
}

func TestReleaseStockRestoresExactlyOnce(t *testing.T) {
	repo := newFakeInventoryRepo()
	repo.seed(t, "p1", 10, 100)
	store := newFakeReservationStore()
	pub := &capturePublisher{}
	reserve := NewReserveStockUseCase(repo, store, pub, nil)
	release := NewReleaseStockUseCase(repo, store, nil)

	_, err := reserve.Execute(context.Background(), createdEvent("order-1", 4))
	require.NoError(t, err)

	failed := domorder.NewOrderFailedEvent("order-1", "", 0, "payment limit exceeded")

	released, err := release.Execute(context.Background(), failed)
	require.NoError(t, err)
	assert.True(t, released)

	item, err := repo.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, item.Quantity)

	released, err = release.Execute(context.Background(), failed)
	require.NoError(t, err)
	assert.False(t, released, "redelivered failure must not release twice")

	item, err = repo.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, item.Quantity)
}

func TestDuplicateCreatedAfterCompensationIsNoOp(t *testing.T) {
	repo := newFakeInventoryRepo()
	repo.seed(t, "p1", 10, 100)
	store := newFakeReservationStore()
	pub := &capturePublisher{}
	reserve := NewReserveStockUseCase(repo, store, pub, nil)
	release := NewReleaseStockUseCase(repo, store, nil)

	evt := createdEvent("order-1", 3)
	_, err := reserve.Execute(context.Background(), evt)
	require.NoError(t, err)

	released, err := release.Execute(context.Background(),
		domorder.NewOrderFailedEvent("order-1", "", 0, "payment gateway unavailable"))
	require.NoError(t, err)
	require.True(t, released)

	// the late duplicate arrives after compensation: the order is
	// terminal, so it must not reserve again or emit anything
	result, err := reserve.Execute(context.Background(), evt)
	require.NoError(t, err)
	assert.False(t, result.Reserved)

	item, err := repo.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, item.Quantity, "duplicate order.created after compensation must be a no-op")

	events := pub.all()
	require.Len(t, events, 1, "only the original reserved event is on the bus")
	_, ok := events[0].(dominv.InventoryReservedEvent)
	assert.True(t, ok)
}

func TestReleaseStockWithoutReservationIsNoOp(t *testing.T) {
	repo := newFakeInventoryRepo()
	repo.seed(t, "p1", 10, 100)
	release := NewReleaseStockUseCase(repo, newFakeReservationStore(), nil)

	released, err := release.Execute(context.Background(),
		domorder.NewOrderFailedEvent("order-1", "p1", 4, "product not found"))
	require.NoError(t, err)
	assert.False(t, released)

	item, err := repo.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, item.Quantity, "no reservation means nothing to restore")
}
