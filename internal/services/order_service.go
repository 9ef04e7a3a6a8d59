package services

import (
	"database/sql"
	"time"

	"marketplace-api/internal/apperr"
	"marketplace-api/internal/models"

	"github.com/rs/zerolog"
)

// orderDateLayout is ISO-8601 without a zone offset, matching what clients
// already parse.
const orderDateLayout = "2006-01-02T15:04:05"

type OrderService struct {
	db             *sql.DB
	logger         zerolog.Logger
	userService    *UserService
	productService *ProductService
}

func NewOrderService(db *sql.DB, logger zerolog.Logger, userService *UserService, productService *ProductService) *OrderService {
	return &OrderService{
		db:             db,
		logger:         logger,
		userService:    userService,
		productService: productService,
	}
}

// Create places an order for a product. A product can be ordered at most
// once system-wide; the unique key on orders.product_id makes the
// existence check race-safe, the SELECT here only gives the friendly error.
func (s *OrderService) Create(buyerEmail string, productID int) (*models.OrderDTO, error) {
	buyer, err := s.userService.GetByEmail(buyerEmail)
	if err != nil {
		return nil, apperr.Authentication("Authenticated user not found")
	}

	exists, err := s.productService.Exists(productID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound("Product not found")
	}

	var existingID int
	err = s.db.QueryRow("SELECT id FROM orders WHERE product_id = ?", productID).Scan(&existingID)
	if err == nil {
		return nil, apperr.Conflict("Product is already ordered")
	}
	if err != sql.ErrNoRows {
		s.logger.Error().Err(err).Int("product_id", productID).Msg("Error checking existing order")
		return nil, apperr.Internal("database error", err)
	}

	result, err := s.db.Exec(
		"INSERT INTO orders (product_id, buyer_id, order_date, status) VALUES (?, ?, ?, ?)",
		productID, buyer.ID, time.Now(), string(models.OrderStatusPending),
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return nil, apperr.Conflict("Product is already ordered")
		}
		s.logger.Error().Err(err).Msg("Error creating order")
		return nil, apperr.Internal("failed to create order", err)
	}

	orderID, err := result.LastInsertId()
	if err != nil {
		return nil, apperr.Internal("failed to get order ID", err)
	}

	order, err := s.getOrder(int(orderID))
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int("order_id", order.ID).Int("product_id", productID).Str("buyer", buyerEmail).Msg("Order created successfully")
	return s.toDTO(order, buyerEmail), nil
}

func (s *OrderService) ListForBuyer(buyerEmail string) ([]*models.OrderDTO, error) {
	buyer, err := s.userService.GetByEmail(buyerEmail)
	if err != nil {
		return nil, apperr.Authentication("Authenticated user not found")
	}

	rows, err := s.db.Query(
		"SELECT id, product_id, buyer_id, order_date, status FROM orders WHERE buyer_id = ? ORDER BY order_date DESC, id DESC",
		buyer.ID,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("buyer", buyerEmail).Msg("Error fetching orders")
		return nil, apperr.Internal("database error", err)
	}
	defer rows.Close()

	dtos := []*models.OrderDTO{}
	for rows.Next() {
		var o models.Order
		var status string
		if err := rows.Scan(&o.ID, &o.ProductID, &o.BuyerID, &o.OrderDate, &status); err != nil {
			return nil, apperr.Internal("database error", err)
		}
		o.Status = models.OrderStatus(status)
		dtos = append(dtos, s.toDTO(&o, buyerEmail))
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("database error", err)
	}

	s.logger.Info().Int("count", len(dtos)).Str("buyer", buyerEmail).Msg("Fetched orders for buyer")
	return dtos, nil
}

// UpdateStatus moves an order through its lifecycle. Only the buyer may
// move it, and only along an allowed transition.
func (s *OrderService) UpdateStatus(buyerEmail string, orderID int, statusName string) (*models.OrderDTO, error) {
	buyer, err := s.userService.GetByEmail(buyerEmail)
	if err != nil {
		return nil, apperr.Authentication("Authenticated user not found")
	}

	order, err := s.getOrder(orderID)
	if err != nil {
		return nil, err
	}

	if order.BuyerID != buyer.ID {
		return nil, apperr.Authorization("You are not authorized to update this order")
	}

	newStatus, err := models.ParseOrderStatus(statusName)
	if err != nil {
		return nil, apperr.Validation("Invalid status value. Must be one of: " + models.OrderStatusValues())
	}

	if !order.Status.CanTransitionTo(newStatus) {
		s.logger.Warn().
			Int("order_id", orderID).
			Str("from", string(order.Status)).
			Str("to", string(newStatus)).
			Msg("Rejected order status transition")
		return nil, apperr.InvalidTransition(string(order.Status), string(newStatus))
	}

	if _, err := s.db.Exec(
		"UPDATE orders SET status = ? WHERE id = ?",
		string(newStatus), orderID,
	); err != nil {
		s.logger.Error().Err(err).Int("order_id", orderID).Msg("Error updating order status")
		return nil, apperr.Internal("failed to update order status", err)
	}

	order.Status = newStatus
	s.logger.Info().Int("order_id", orderID).Str("status", string(newStatus)).Msg("Order status updated successfully")
	return s.toDTO(order, buyerEmail), nil
}

func (s *OrderService) getOrder(orderID int) (*models.Order, error) {
	var o models.Order
	var status string

	err := s.db.QueryRow(
		"SELECT id, product_id, buyer_id, order_date, status FROM orders WHERE id = ?",
		orderID,
	).Scan(&o.ID, &o.ProductID, &o.BuyerID, &o.OrderDate, &status)

	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("Order not found")
	}
	if err != nil {
		s.logger.Error().Err(err).Int("order_id", orderID).Msg("Error fetching order")
		return nil, apperr.Internal("database error", err)
	}

	o.Status = models.OrderStatus(status)
	return &o, nil
}

func (s *OrderService) toDTO(o *models.Order, buyerEmail string) *models.OrderDTO {
	return &models.OrderDTO{
		ID:         o.ID,
		ProductID:  o.ProductID,
		BuyerEmail: buyerEmail,
		OrderDate:  o.OrderDate.Format(orderDateLayout),
		Status:     string(o.Status),
	}
}
