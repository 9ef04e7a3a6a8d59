package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"marketplace-api/internal/middleware"
	"marketplace-api/internal/models"
	"marketplace-api/internal/services"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// multipartMemoryLimit bounds how much of the upload is buffered in memory.
// Larger images spill to temp files and still get rejected by the service's
// 5MB ceiling.
const multipartMemoryLimit = 8 << 20

type ProductHandler struct {
	productService *services.ProductService
	reviewService  *services.ReviewService
	logger         zerolog.Logger
}

func NewProductHandler(productService *services.ProductService, reviewService *services.ReviewService, logger zerolog.Logger) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		reviewService:  reviewService,
		logger:         logger,
	}
}

func (h *ProductHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	products, err := h.productService.List()
	if err != nil {
		respondWithAppError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid product ID")
		return
	}

	product, err := h.productService.Get(productID)
	if err != nil {
		respondWithAppError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	products, err := h.productService.ListBySeller(identity.Email)
	if err != nil {
		respondWithAppError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, products)
}

// Create handles the multipart listing upload: a "product" JSON part plus
// an optional "image" file part.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Request must be multipart form data")
		return
	}

	var req models.CreateProductRequest
	if err := json.Unmarshal([]byte(r.FormValue("product")), &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid product JSON")
		return
	}

	var image []byte
	var imageContentType string
	file, header, err := r.FormFile("image")
	if err == nil {
		defer file.Close()
		image, err = io.ReadAll(file)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid_request", "Failed to read image")
			return
		}
		imageContentType = header.Header.Get("Content-Type")
	} else if err != http.ErrMissingFile {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Failed to read image part")
		return
	}

	product, err := h.productService.Create(identity.Email, &req, image, imageContentType)
	if err != nil {
		respondWithAppError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	productID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid product ID")
		return
	}

	if err := h.productService.Delete(identity.Email, productID); err != nil {
		respondWithAppError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Product deleted successfully"})
}

// DebugPrincipal echoes the caller's security context.
func (h *ProductHandler) DebugPrincipal(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"email": identity.Email,
		"roles": identity.Roles,
	})
}

func (h *ProductHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	productID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid product ID")
		return
	}

	var req models.CreateReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	review, err := h.reviewService.Create(identity.Email, productID, &req)
	if err != nil {
		respondWithAppError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, review)
}

func (h *ProductHandler) GetReviews(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid product ID")
		return
	}

	reviews, err := h.reviewService.ListForProduct(productID)
	if err != nil {
		respondWithAppError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, reviews)
}

func pathID(r *http.Request, name string) (int, error) {
	return strconv.Atoi(mux.Vars(r)[name])
}
