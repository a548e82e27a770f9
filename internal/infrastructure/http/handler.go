package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apporder "github.com/kitewave/orderflow/internal/application/order"
	apppayment "github.com/kitewave/orderflow/internal/application/payment"
	dominv "github.com/kitewave/orderflow/internal/domain/inventory"
	domorder "github.com/kitewave/orderflow/internal/domain/order"
	dompayment "github.com/kitewave/orderflow/internal/domain/payment"
	"github.com/kitewave/orderflow/internal/observability"
)

type Handler struct {
	orders    *apporder.SubmitOrderUseCase
	inventory dominv.Repository
	payments  *apppayment.ChargePaymentUseCase
}

func NewHandler(
	orders *apporder.SubmitOrderUseCase,
	inventory dominv.Repository,
	payments *apppayment.ChargePaymentUseCase,
) *Handler {
	return &Handler{
		orders:    orders,
		inventory: inventory,
		payments:  payments,
	}
}

// Router builds the service's route tree. Observability middleware is
// attached by the caller so tests can mount the bare routes.
func (h *Handler) Router(tel observability.Telemetry) http.Handler {
	r := chi.NewRouter()
	if tel != nil {
		r.Use(ObservabilityMiddleware(tel))
	}

	r.Post("/orders", h.handleSubmitOrder)
	r.Get("/orders/{id}", h.handleGetOrder)
	r.Get("/inventory/{productId}", h.handleGetInventory)
	r.Get("/payments/{orderId}", h.handleGetPayment)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

type submitOrderRequest struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type submitOrderResponse struct {
	OrderID string          `json:"order_id"`
	Status  domorder.Status `json:"status"`
}

func (h *Handler) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.orders.Execute(r.Context(), apporder.SubmitOrderInput{
		UserID:    req.UserID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// The saga continues asynchronously; 202 tells the caller to poll.
	writeJSON(w, http.StatusAccepted, submitOrderResponse{
		OrderID: result.OrderID,
		Status:  result.Status,
	})
}

type orderResponse struct {
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	ProductID     string          `json:"product_id"`
	Quantity      int             `json:"quantity"`
	Amount        int64           `json:"amount,omitempty"`
	Status        domorder.Status `json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, orderResponse{
		OrderID:       o.ID,
		UserID:        o.UserID,
		ProductID:     o.ProductID,
		Quantity:      o.Quantity,
		Amount:        o.Amount,
		Status:        o.Status,
		FailureReason: o.FailureReason,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	})
}

type inventoryResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

func (h *Handler) handleGetInventory(w http.ResponseWriter, r *http.Request) {
	item, err := h.inventory.Get(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, inventoryResponse{
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		UnitPrice: item.UnitPrice,
	})
}

type paymentResponse struct {
	PaymentID string            `json:"payment_id"`
	OrderID   string            `json:"order_id"`
	Amount    int64             `json:"amount"`
	Status    dompayment.Status `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

func (h *Handler) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Find(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, paymentResponse{
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Amount:    p.Amount,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
	})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domorder.ErrNotFound),
		errors.Is(err, dominv.ErrNotFound),
		errors.Is(err, dompayment.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domorder.ErrConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, domorder.ErrInvalidQuantity),
		errors.Is(err, dominv.ErrInvalidQuantity),
		errors.Is(err, apporder.ErrValidation),
		errors.Is(err, apppayment.ErrValidation):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
