package services

import (
	"database/sql"

	"marketplace-api/internal/apperr"
	"marketplace-api/internal/models"

	"github.com/rs/zerolog"
)

type WishlistService struct {
	db             *sql.DB
	logger         zerolog.Logger
	userService    *UserService
	productService *ProductService
}

func NewWishlistService(db *sql.DB, logger zerolog.Logger, userService *UserService, productService *ProductService) *WishlistService {
	return &WishlistService{
		db:             db,
		logger:         logger,
		userService:    userService,
		productService: productService,
	}
}

// Add puts a product on the caller's wishlist. The unique key on
// (user_id, product_id) backs the duplicate check under concurrency.
func (s *WishlistService) Add(email string, productID int) error {
	user, err := s.userService.GetByEmail(email)
	if err != nil {
		return apperr.Authentication("Authenticated user not found")
	}

	exists, err := s.productService.Exists(productID)
	if err != nil {
		return err
	}
	if !exists {
		return apperr.NotFound("Product not found")
	}

	var existingID int
	err = s.db.QueryRow(
		"SELECT id FROM wishlist WHERE user_id = ? AND product_id = ?",
		user.ID, productID,
	).Scan(&existingID)
	if err == nil {
		return apperr.Conflict("Product is already in your wishlist")
	}
	if err != sql.ErrNoRows {
		s.logger.Error().Err(err).Msg("Error checking wishlist entry")
		return apperr.Internal("database error", err)
	}

	if _, err := s.db.Exec(
		"INSERT INTO wishlist (user_id, product_id) VALUES (?, ?)",
		user.ID, productID,
	); err != nil {
		if isDuplicateEntry(err) {
			return apperr.Conflict("Product is already in your wishlist")
		}
		s.logger.Error().Err(err).Msg("Error adding wishlist entry")
		return apperr.Internal("failed to add product to wishlist", err)
	}

	s.logger.Info().Int("product_id", productID).Str("email", email).Msg("Product added to wishlist")
	return nil
}

func (s *WishlistService) List(email string) ([]*models.WishlistDTO, error) {
	user, err := s.userService.GetByEmail(email)
	if err != nil {
		return nil, apperr.Authentication("Authenticated user not found")
	}

	rows, err := s.db.Query(
		`SELECT w.id, w.product_id, p.title, p.price, p.category
		 FROM wishlist w JOIN products p ON p.id = w.product_id
		 WHERE w.user_id = ?`,
		user.ID,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("email", email).Msg("Error fetching wishlist")
		return nil, apperr.Internal("database error", err)
	}
	defer rows.Close()

	items := []*models.WishlistDTO{}
	for rows.Next() {
		var item models.WishlistDTO
		var category sql.NullString
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Title, &item.Price, &category); err != nil {
			return nil, apperr.Internal("database error", err)
		}
		item.Category = category.String
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("database error", err)
	}

	return items, nil
}

func (s *WishlistService) Remove(email string, productID int) error {
	user, err := s.userService.GetByEmail(email)
	if err != nil {
		return apperr.Authentication("Authenticated user not found")
	}

	result, err := s.db.Exec(
		"DELETE FROM wishlist WHERE user_id = ? AND product_id = ?",
		user.ID, productID,
	)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error removing wishlist entry")
		return apperr.Internal("failed to remove product from wishlist", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperr.Internal("database error", err)
	}
	if affected == 0 {
		return apperr.NotFound("Product not found in your wishlist")
	}

	s.logger.Info().Int("product_id", productID).Str("email", email).Msg("Product removed from wishlist")
	return nil
}
