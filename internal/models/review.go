package models

type Review struct {
	ID            int    `json:"id"`
	ProductID     int    `json:"product_id"`
	ReviewerEmail string `json:"reviewer_email"`
	Rating        int    `json:"rating"`
	Comment       string `json:"comment"`
}

type CreateReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}
