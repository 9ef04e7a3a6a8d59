package services

import (
	"database/sql"

	"marketplace-api/internal/apperr"
	"marketplace-api/internal/models"

	"github.com/rs/zerolog"
)

type ReviewService struct {
	db             *sql.DB
	logger         zerolog.Logger
	productService *ProductService
}

func NewReviewService(db *sql.DB, logger zerolog.Logger, productService *ProductService) *ReviewService {
	return &ReviewService{
		db:             db,
		logger:         logger,
		productService: productService,
	}
}

// Create records a review. The reviewer is stored as a denormalized email
// and there is no uniqueness rule: the same user may review a product
// repeatedly.
func (s *ReviewService) Create(reviewerEmail string, productID int, req *models.CreateReviewRequest) (*models.Review, error) {
	exists, err := s.productService.Exists(productID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound("Product not found")
	}

	if req.Rating < 1 || req.Rating > 5 {
		return nil, apperr.Validation("Rating must be between 1 and 5")
	}

	result, err := s.db.Exec(
		"INSERT INTO reviews (product_id, reviewer_email, rating, comment) VALUES (?, ?, ?, ?)",
		productID, reviewerEmail, req.Rating, req.Comment,
	)
	if err != nil {
		s.logger.Error().Err(err).Int("product_id", productID).Msg("Error creating review")
		return nil, apperr.Internal("failed to create review", err)
	}

	reviewID, err := result.LastInsertId()
	if err != nil {
		return nil, apperr.Internal("failed to get review ID", err)
	}

	review := &models.Review{
		ID:            int(reviewID),
		ProductID:     productID,
		ReviewerEmail: reviewerEmail,
		Rating:        req.Rating,
		Comment:       req.Comment,
	}

	s.logger.Info().Int("review_id", review.ID).Int("product_id", productID).Msg("Review created successfully")
	return review, nil
}

func (s *ReviewService) ListForProduct(productID int) ([]*models.Review, error) {
	exists, err := s.productService.Exists(productID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound("Product not found")
	}

	rows, err := s.db.Query(
		"SELECT id, product_id, reviewer_email, rating, comment FROM reviews WHERE product_id = ?",
		productID,
	)
	if err != nil {
		s.logger.Error().Err(err).Int("product_id", productID).Msg("Error fetching reviews")
		return nil, apperr.Internal("database error", err)
	}
	defer rows.Close()

	reviews := []*models.Review{}
	for rows.Next() {
		var r models.Review
		var comment sql.NullString
		if err := rows.Scan(&r.ID, &r.ProductID, &r.ReviewerEmail, &r.Rating, &comment); err != nil {
			return nil, apperr.Internal("database error", err)
		}
		r.Comment = comment.String
		reviews = append(reviews, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("database error", err)
	}

	return reviews, nil
}
