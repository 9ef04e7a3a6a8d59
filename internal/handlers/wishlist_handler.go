package handlers

import (
	"net/http"

	"marketplace-api/internal/middleware"
	"marketplace-api/internal/services"

	"github.com/rs/zerolog"
)

type WishlistHandler struct {
	wishlistService *services.WishlistService
	logger          zerolog.Logger
}

func NewWishlistHandler(wishlistService *services.WishlistService, logger zerolog.Logger) *WishlistHandler {
	return &WishlistHandler{
		wishlistService: wishlistService,
		logger:          logger,
	}
}

func (h *WishlistHandler) Add(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	productID, err := pathID(r, "productId")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid product ID")
		return
	}

	if err := h.wishlistService.Add(identity.Email, productID); err != nil {
		respondWithAppError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Product added to wishlist successfully"})
}

func (h *WishlistHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	items, err := h.wishlistService.List(identity.Email)
	if err != nil {
		respondWithAppError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, items)
}

func (h *WishlistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	productID, err := pathID(r, "productId")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid product ID")
		return
	}

	if err := h.wishlistService.Remove(identity.Email, productID); err != nil {
		respondWithAppError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Product removed from wishlist successfully"})
}
