package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"marketplace-api/internal/apperr"
	"marketplace-api/internal/models"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewUserService(db *sql.DB, logger zerolog.Logger) *UserService {
	return &UserService{
		db:     db,
		logger: logger,
	}
}

// isDuplicateEntry reports whether err is the MySQL duplicate-key error.
// Unique indexes are the store-level serialization point for invariants
// like one order per product, so a race between two inserts surfaces here.
func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

func (s *UserService) Register(req *models.RegisterRequest) (*models.User, error) {
	if req.Email == "" || req.Password == "" {
		return nil, apperr.Validation("Email and password are required")
	}

	roles := validRoles(req.Roles)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error hashing password")
		return nil, apperr.Internal("failed to hash password", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error().Err(err).Msg("Error starting transaction")
		return nil, apperr.Internal("failed to start transaction", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		"INSERT INTO users (email, password_hash) VALUES (?, ?)",
		req.Email, string(hashedPassword),
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return nil, apperr.Conflict("User with this email already exists")
		}
		s.logger.Error().Err(err).Msg("Error creating user")
		return nil, apperr.Internal("failed to create user", err)
	}

	userID, err := result.LastInsertId()
	if err != nil {
		return nil, apperr.Internal("failed to get user ID", err)
	}

	for _, role := range roles {
		if _, err := tx.Exec(
			"INSERT INTO user_roles (user_id, role) VALUES (?, ?)",
			userID, role,
		); err != nil {
			s.logger.Error().Err(err).Msg("Error granting role")
			return nil, apperr.Internal("failed to grant role", err)
		}
	}

	if err = tx.Commit(); err != nil {
		s.logger.Error().Err(err).Msg("Error committing registration")
		return nil, apperr.Internal("failed to commit registration", err)
	}

	user, err := s.GetByID(int(userID))
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int("user_id", user.ID).Str("email", user.Email).Msg("User registered successfully")
	return user, nil
}

// validRoles filters the requested roles down to the known set, defaulting
// to USER when nothing valid was asked for.
func validRoles(requested []string) []string {
	known := []models.Role{models.RoleUser, models.RoleAdmin}

	var roles []string
	for _, r := range requested {
		for _, k := range known {
			if strings.ToUpper(r) == string(k) {
				roles = append(roles, string(k))
			}
		}
	}
	if len(roles) == 0 {
		roles = []string{string(models.RoleUser)}
	}
	return roles
}

// Authenticate verifies credentials. The failure is identical for an
// unknown email and a wrong password so the response cannot be used to
// probe which accounts exist.
func (s *UserService) Authenticate(req *models.LoginRequest) (*models.User, error) {
	if req.Email == "" || req.Password == "" {
		return nil, apperr.Authentication("Invalid email or password")
	}

	var user models.User
	var passwordHash string

	err := s.db.QueryRow(
		"SELECT id, email, password_hash, created_at, updated_at FROM users WHERE email = ?",
		req.Email,
	).Scan(&user.ID, &user.Email, &passwordHash, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, apperr.Authentication("Invalid email or password")
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Error querying user")
		return nil, apperr.Internal("database error", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password))
	if err != nil {
		s.logger.Warn().Str("email", req.Email).Msg("Failed authentication attempt")
		return nil, apperr.Authentication("Invalid email or password")
	}

	user.Roles, err = s.getRoles(user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int("user_id", user.ID).Str("email", user.Email).Msg("User authenticated successfully")
	return &user, nil
}

func (s *UserService) GetByID(userID int) (*models.User, error) {
	var user models.User
	err := s.db.QueryRow(
		"SELECT id, email, password_hash, created_at, updated_at FROM users WHERE id = ?",
		userID,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		s.logger.Error().Err(err).Int("user_id", userID).Msg("Error fetching user")
		return nil, apperr.Internal("database error", err)
	}

	user.Roles, err = s.getRoles(user.ID)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (s *UserService) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := s.db.QueryRow(
		"SELECT id, email, password_hash, created_at, updated_at FROM users WHERE email = ?",
		email,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		s.logger.Error().Err(err).Str("email", email).Msg("Error fetching user")
		return nil, apperr.Internal("database error", err)
	}

	user.Roles, err = s.getRoles(user.ID)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (s *UserService) getRoles(userID int) ([]string, error) {
	rows, err := s.db.Query("SELECT role FROM user_roles WHERE user_id = ?", userID)
	if err != nil {
		s.logger.Error().Err(err).Int("user_id", userID).Msg("Error fetching roles")
		return nil, apperr.Internal("database error", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, apperr.Internal("database error", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("database error", err)
	}

	return roles, nil
}

// RehashLegacyPasswords migrates any stored password that is not already a
// bcrypt hash. Running it again after migration is a no-op.
func (s *UserService) RehashLegacyPasswords() error {
	rows, err := s.db.Query("SELECT id, email, password_hash FROM users")
	if err != nil {
		s.logger.Error().Err(err).Msg("Error listing users for rehash")
		return apperr.Internal("database error", err)
	}
	defer rows.Close()

	type legacyUser struct {
		id       int
		email    string
		password string
	}

	var legacy []legacyUser
	for rows.Next() {
		var u legacyUser
		if err := rows.Scan(&u.id, &u.email, &u.password); err != nil {
			return apperr.Internal("database error", err)
		}
		if !isBcryptHash(u.password) {
			legacy = append(legacy, u)
		}
	}
	if err := rows.Err(); err != nil {
		return apperr.Internal("database error", err)
	}

	for _, u := range legacy {
		s.logger.Info().Str("email", u.email).Msg("Hashing legacy password")
		hashed, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return apperr.Internal("failed to hash password", err)
		}
		if _, err := s.db.Exec(
			"UPDATE users SET password_hash = ? WHERE id = ?",
			string(hashed), u.id,
		); err != nil {
			s.logger.Error().Err(err).Int("user_id", u.id).Msg("Error updating password hash")
			return apperr.Internal(fmt.Sprintf("failed to rehash password for user %d", u.id), err)
		}
	}

	s.logger.Info().Int("migrated", len(legacy)).Msg("Password hashing complete")
	return nil
}

func isBcryptHash(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") ||
		strings.HasPrefix(stored, "$2b$") ||
		strings.HasPrefix(stored, "$2y$")
}
