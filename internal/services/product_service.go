package services

import (
	"database/sql"
	"encoding/base64"

	"marketplace-api/internal/apperr"
	"marketplace-api/internal/models"

	"github.com/rs/zerolog"
)

// maxImageSize is the ceiling for an uploaded product image.
const maxImageSize = 5 * 1024 * 1024

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

type ProductService struct {
	db          *sql.DB
	logger      zerolog.Logger
	userService *UserService
}

func NewProductService(db *sql.DB, logger zerolog.Logger, userService *UserService) *ProductService {
	return &ProductService{
		db:          db,
		logger:      logger,
		userService: userService,
	}
}

func (s *ProductService) Create(sellerEmail string, req *models.CreateProductRequest, image []byte, imageContentType string) (*models.ProductDTO, error) {
	if req.Title == "" {
		return nil, apperr.Validation("Title is required")
	}
	if req.Price < 0 {
		return nil, apperr.Validation("Price must not be negative")
	}

	// Image guards run before anything touches the store.
	if len(image) > 0 {
		if len(image) > maxImageSize {
			return nil, apperr.Validation("Image size exceeds 5MB limit")
		}
		if !allowedImageTypes[imageContentType] {
			return nil, apperr.Validation("Only JPEG and PNG images are allowed")
		}
	}

	seller, err := s.userService.GetByEmail(sellerEmail)
	if err != nil {
		return nil, apperr.Authentication("Authenticated user not found")
	}

	result, err := s.db.Exec(
		"INSERT INTO products (title, description, price, category, item_condition, seller_id, image) VALUES (?, ?, ?, ?, ?, ?, ?)",
		req.Title, req.Description, req.Price, req.Category, req.ItemCondition, seller.ID, image,
	)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error creating product")
		return nil, apperr.Internal("failed to create product", err)
	}

	productID, err := result.LastInsertId()
	if err != nil {
		return nil, apperr.Internal("failed to get product ID", err)
	}

	product, err := s.Get(int(productID))
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int("product_id", product.ID).Str("seller", sellerEmail).Msg("Product created successfully")
	return product, nil
}

const productColumns = `p.id, p.title, p.description, p.price, p.category, p.item_condition, p.seller_id, u.email, p.image, p.created_at`

func scanProduct(row interface{ Scan(dest ...interface{}) error }) (*models.Product, error) {
	var p models.Product
	var description, category, condition sql.NullString
	var image []byte

	err := row.Scan(&p.ID, &p.Title, &description, &p.Price, &category, &condition, &p.SellerID, &p.SellerEmail, &image, &p.CreatedAt)
	if err != nil {
		return nil, err
	}

	p.Description = description.String
	p.Category = category.String
	p.ItemCondition = condition.String
	p.Image = image
	return &p, nil
}

func toProductDTO(p *models.Product) *models.ProductDTO {
	dto := &models.ProductDTO{
		ID:            p.ID,
		Title:         p.Title,
		Description:   p.Description,
		Price:         p.Price,
		Category:      p.Category,
		ItemCondition: p.ItemCondition,
		SellerEmail:   p.SellerEmail,
	}
	if len(p.Image) > 0 {
		dto.Image = base64.StdEncoding.EncodeToString(p.Image)
	}
	return dto
}

func (s *ProductService) List() ([]*models.ProductDTO, error) {
	rows, err := s.db.Query(
		"SELECT " + productColumns + " FROM products p JOIN users u ON u.id = p.seller_id ORDER BY p.created_at DESC",
	)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error fetching products")
		return nil, apperr.Internal("database error", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

func (s *ProductService) ListBySeller(sellerEmail string) ([]*models.ProductDTO, error) {
	seller, err := s.userService.GetByEmail(sellerEmail)
	if err != nil {
		return nil, apperr.Authentication("Authenticated user not found")
	}

	rows, err := s.db.Query(
		"SELECT "+productColumns+" FROM products p JOIN users u ON u.id = p.seller_id WHERE p.seller_id = ? ORDER BY p.created_at DESC",
		seller.ID,
	)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error fetching seller products")
		return nil, apperr.Internal("database error", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

func collectProducts(rows *sql.Rows) ([]*models.ProductDTO, error) {
	dtos := []*models.ProductDTO{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, apperr.Internal("database error", err)
		}
		dtos = append(dtos, toProductDTO(p))
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("database error", err)
	}
	return dtos, nil
}

func (s *ProductService) Get(productID int) (*models.ProductDTO, error) {
	p, err := s.getProduct(productID)
	if err != nil {
		return nil, err
	}
	return toProductDTO(p), nil
}

func (s *ProductService) getProduct(productID int) (*models.Product, error) {
	row := s.db.QueryRow(
		"SELECT "+productColumns+" FROM products p JOIN users u ON u.id = p.seller_id WHERE p.id = ?",
		productID,
	)

	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("Product not found")
	}
	if err != nil {
		s.logger.Error().Err(err).Int("product_id", productID).Msg("Error fetching product")
		return nil, apperr.Internal("database error", err)
	}
	return p, nil
}

// Delete removes a listing. Only the seller may delete it, and never once
// an order references it: the order wins over the listing.
func (s *ProductService) Delete(sellerEmail string, productID int) error {
	seller, err := s.userService.GetByEmail(sellerEmail)
	if err != nil {
		return apperr.Authentication("Authenticated user not found")
	}

	product, err := s.getProduct(productID)
	if err != nil {
		return err
	}

	if product.SellerID != seller.ID {
		return apperr.Authorization("You are not authorized to delete this product")
	}

	var orderCount int
	err = s.db.QueryRow("SELECT COUNT(*) FROM orders WHERE product_id = ?", productID).Scan(&orderCount)
	if err != nil {
		s.logger.Error().Err(err).Int("product_id", productID).Msg("Error checking orders for product")
		return apperr.Internal("database error", err)
	}
	if orderCount > 0 {
		return apperr.Conflict("Can't delete your product, it is already ordered by someone")
	}

	if _, err := s.db.Exec("DELETE FROM products WHERE id = ?", productID); err != nil {
		s.logger.Error().Err(err).Int("product_id", productID).Msg("Error deleting product")
		return apperr.Internal("failed to delete product", err)
	}

	s.logger.Info().Int("product_id", productID).Str("seller", sellerEmail).Msg("Product deleted successfully")
	return nil
}

// Exists reports whether the product row is present, for services that only
// need the referential check.
func (s *ProductService) Exists(productID int) (bool, error) {
	var id int
	err := s.db.QueryRow("SELECT id FROM products WHERE id = ?", productID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		s.logger.Error().Err(err).Int("product_id", productID).Msg("Error checking product existence")
		return false, apperr.Internal("database error", err)
	}
	return true, nil
}
