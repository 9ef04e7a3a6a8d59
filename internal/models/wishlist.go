package models

type WishlistItem struct {
	ID        int `json:"id"`
	UserID    int `json:"-"`
	ProductID int `json:"product_id"`
}

// WishlistDTO carries enough of the product to render a wishlist row
// without a second lookup.
type WishlistDTO struct {
	ID        int     `json:"id"`
	ProductID int     `json:"product_id"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Category  string  `json:"category"`
}
