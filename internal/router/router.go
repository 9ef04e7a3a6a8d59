package router

import (
	"database/sql"
	"net/http"

	"marketplace-api/internal/config"
	"marketplace-api/internal/handlers"
	"marketplace-api/internal/middleware"
	"marketplace-api/internal/services"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

func SetupRouter(db *sql.DB, cfg config.Config, logger zerolog.Logger) *mux.Router {
	userService := services.NewUserService(db, logger)
	tokenService := services.NewTokenService(cfg.JWTSecret, logger)
	productService := services.NewProductService(db, logger, userService)
	orderService := services.NewOrderService(db, logger, userService, productService)
	reviewService := services.NewReviewService(db, logger, productService)
	wishlistService := services.NewWishlistService(db, logger, userService, productService)

	authHandler := handlers.NewAuthHandler(userService, tokenService, logger)
	productHandler := handlers.NewProductHandler(productService, reviewService, logger)
	orderHandler := handlers.NewOrderHandler(orderService, logger)
	wishlistHandler := handlers.NewWishlistHandler(wishlistService, logger)

	r := mux.NewRouter()

	rateLimiter := middleware.NewRateLimiter(rate.Limit(10), 20)

	r.Use(middleware.ErrorHandling(logger))
	r.Use(middleware.PerformanceMonitoring(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	r.Use(rateLimiter.Middleware())

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Authentication(tokenService, userService, logger))
	api.Use(middleware.Authorize(logger))

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", authHandler.Register).Methods("POST")
	auth.HandleFunc("/login", authHandler.Login).Methods("POST")
	auth.HandleFunc("/hash-passwords", authHandler.HashPasswords).Methods("POST")

	products := api.PathPrefix("/products").Subrouter()
	products.HandleFunc("", productHandler.GetAll).Methods("GET")
	products.HandleFunc("", productHandler.Create).Methods("POST")
	products.HandleFunc("/my-products", productHandler.GetMine).Methods("GET")
	products.HandleFunc("/debug/principal", productHandler.DebugPrincipal).Methods("GET")
	products.HandleFunc("/{id:[0-9]+}", productHandler.Get).Methods("GET")
	products.HandleFunc("/{id:[0-9]+}", productHandler.Delete).Methods("DELETE")
	products.HandleFunc("/{id:[0-9]+}/reviews", productHandler.CreateReview).Methods("POST")
	products.HandleFunc("/{id:[0-9]+}/reviews", productHandler.GetReviews).Methods("GET")

	orders := api.PathPrefix("/orders").Subrouter()
	orders.Use(middleware.RequestValidation())
	orders.HandleFunc("", orderHandler.Create).Methods("POST")
	orders.HandleFunc("", orderHandler.GetUserOrders).Methods("GET")
	orders.HandleFunc("/{id:[0-9]+}/status", orderHandler.UpdateStatus).Methods("PUT")

	wishlist := api.PathPrefix("/wishlist").Subrouter()
	wishlist.HandleFunc("", wishlistHandler.Get).Methods("GET")
	wishlist.HandleFunc("/{productId:[0-9]+}", wishlistHandler.Add).Methods("POST")
	wishlist.HandleFunc("/{productId:[0-9]+}", wishlistHandler.Remove).Methods("DELETE")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	return r
}
