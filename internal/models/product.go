package models

import "time"

type Product struct {
	ID            int       `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Price         float64   `json:"price"`
	Category      string    `json:"category"`
	ItemCondition string    `json:"item_condition"`
	SellerID      int       `json:"-"`
	SellerEmail   string    `json:"seller_email"`
	Image         []byte    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

type CreateProductRequest struct {
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	Price         float64 `json:"price"`
	Category      string  `json:"category"`
	ItemCondition string  `json:"item_condition"`
}

// ProductDTO is the wire projection of a product. The image travels as
// base64 since the row stores raw bytes.
type ProductDTO struct {
	ID            int     `json:"id"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	Price         float64 `json:"price"`
	Category      string  `json:"category"`
	ItemCondition string  `json:"item_condition"`
	SellerEmail   string  `json:"seller_email"`
	Image         string  `json:"image,omitempty"`
}
