package order

// orderState implements the state pattern for order lifecycle transitions.
// Each state decides which events advance the order, which are absorbed as
// idempotent no-ops, and which are invalid.
type orderState interface {
	Status() Status
	OnInventoryReserved(o *Order) (orderState, error)
	OnPaymentCompleted(o *Order) (orderState, error)
	OnFailed(o *Order, reason string) (orderState, error)
}

func (o *Order) state() orderState {
	switch o.Status {
	case StatusCreated:
		return createdState{}
	case StatusInventoryReserved:
		return inventoryReservedState{}
	case StatusPaymentCompleted:
		return paymentCompletedState{}
	case StatusCompleted:
		return completedState{}
	case StatusFailed:
		return failedState{}
	default:
		return createdState{}
	}
}

type createdState struct{}

func (createdState) Status() Status { return StatusCreated }

func (createdState) OnInventoryReserved(o *Order) (orderState, error) {
	o.FailureReason = ""
	return inventoryReservedState{}, nil
}

func (createdState) OnPaymentCompleted(*Order) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

func (createdState) OnFailed(o *Order, reason string) (orderState, error) {
	o.FailureReason = reason
	return failedState{}, nil
}

type inventoryReservedState struct{}

func (inventoryReservedState) Status() Status { return StatusInventoryReserved }

func (inventoryReservedState) OnInventoryReserved(*Order) (orderState, error) {
	// duplicate delivery
	return inventoryReservedState{}, nil
}

func (inventoryReservedState) OnPaymentCompleted(o *Order) (orderState, error) {
	o.FailureReason = ""
	return paymentCompletedState{}, nil
}

func (inventoryReservedState) OnFailed(o *Order, reason string) (orderState, error) {
	o.FailureReason = reason
	return failedState{}, nil
}

type paymentCompletedState struct{}

func (paymentCompletedState) Status() Status { return StatusPaymentCompleted }

func (paymentCompletedState) OnInventoryReserved(*Order) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

func (paymentCompletedState) OnPaymentCompleted(*Order) (orderState, error) {
	return paymentCompletedState{}, nil
}

func (paymentCompletedState) OnFailed(o *Order, reason string) (orderState, error) {
	o.FailureReason = reason
	return failedState{}, nil
}

type completedState struct{}

func (completedState) Status() Status { return StatusCompleted }

func (completedState) OnInventoryReserved(*Order) (orderState, error) {
	return completedState{}, nil
}

func (completedState) OnPaymentCompleted(*Order) (orderState, error) {
	// duplicate delivery of the final payment event
	return completedState{}, nil
}

func (completedState) OnFailed(*Order, string) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

type failedState struct{}

func (failedState) Status() Status { return StatusFailed }

func (failedState) OnInventoryReserved(*Order) (orderState, error) {
	// stale reservation event arriving after compensation
	return failedState{}, nil
}

func (failedState) OnPaymentCompleted(*Order) (orderState, error) {
	// stale payment event arriving after compensation
	return failedState{}, nil
}

func (failedState) OnFailed(*Order, string) (orderState, error) {
	return failedState{}, nil
}
