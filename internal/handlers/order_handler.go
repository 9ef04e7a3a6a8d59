package handlers

import (
	"encoding/json"
	"net/http"

	"marketplace-api/internal/middleware"
	"marketplace-api/internal/models"
	"marketplace-api/internal/services"

	"github.com/rs/zerolog"
)

type OrderHandler struct {
	orderService *services.OrderService
	logger       zerolog.Logger
}

func NewOrderHandler(orderService *services.OrderService, logger zerolog.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		logger:       logger,
	}
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	var req models.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	order, err := h.orderService.Create(identity.Email, req.ProductID)
	if err != nil {
		respondWithAppError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	orders, err := h.orderService.ListForBuyer(identity.Email)
	if err != nil {
		respondWithAppError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	orderID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid order ID")
		return
	}

	var req models.OrderStatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	order, err := h.orderService.UpdateStatus(identity.Email, orderID, req.Status)
	if err != nil {
		respondWithAppError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, order)
}
