package db

import (
	"database/sql"
	"log"

	_ "github.com/go-sql-driver/mysql"
)

func InitDB(dbURL string) *sql.DB {
	db, err := sql.Open("mysql", dbURL)
	if err != nil {
		log.Fatal("❌ Veritabanına bağlanılamadı:", err)
	}

	err = db.Ping()
	if err != nil {
		log.Fatal("❌ Veritabanı yanıt vermiyor:", err)
	}

	log.Println("✅ Veritabanına bağlanıldı")
	return db
}

func RunMigrations(db *sql.DB) {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INT AUTO_INCREMENT PRIMARY KEY,
			email VARCHAR(100) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS user_roles (
			id INT AUTO_INCREMENT PRIMARY KEY,
			user_id INT NOT NULL,
			role VARCHAR(50) NOT NULL,
			UNIQUE KEY uq_user_role (user_id, role),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS products (
			id INT AUTO_INCREMENT PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			description TEXT,
			price DECIMAL(12,2) NOT NULL,
			category VARCHAR(100),
			item_condition VARCHAR(50),
			seller_id INT NOT NULL,
			image LONGBLOB,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_seller_id (seller_id),
			FOREIGN KEY (seller_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS orders (
			id INT AUTO_INCREMENT PRIMARY KEY,
			product_id INT NOT NULL,
			buyer_id INT NOT NULL,
			order_date DATETIME NOT NULL,
			status VARCHAR(20) NOT NULL,
			UNIQUE KEY uq_order_product (product_id),
			INDEX idx_buyer_id (buyer_id),
			FOREIGN KEY (product_id) REFERENCES products(id),
			FOREIGN KEY (buyer_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS reviews (
			id INT AUTO_INCREMENT PRIMARY KEY,
			product_id INT NOT NULL,
			reviewer_email VARCHAR(100) NOT NULL,
			rating INT NOT NULL,
			comment TEXT,
			INDEX idx_product_id (product_id),
			FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS wishlist (
			id INT AUTO_INCREMENT PRIMARY KEY,
			user_id INT NOT NULL,
			product_id INT NOT NULL,
			UNIQUE KEY uq_user_product (user_id, product_id),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
		);`,
	}

	for _, q := range queries {
		_, err := db.Exec(q)
		if err != nil {
			log.Fatal("Migration hatası:", err)
		}
	}
	log.Println("Migration tamamlandı")
}
