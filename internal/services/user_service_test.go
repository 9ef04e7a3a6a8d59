package services

import (
	"regexp"
	"testing"
	"time"

	"marketplace-api/internal/apperr"
	"marketplace-api/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newUserServiceMock(t *testing.T) (*UserService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserService(db, zerolog.Nop()), mock
}

func userRows(id int, email, passwordHash string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at", "updated_at"}).
		AddRow(id, email, passwordHash, now, now)
}

func TestRegisterSuccess(t *testing.T) {
	s, mock := newUserServiceMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (email, password_hash) VALUES (?, ?)")).
		WithArgs("alice@example.com", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_roles (user_id, role) VALUES (?, ?)")).
		WithArgs(int64(1), "USER").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, created_at, updated_at FROM users WHERE id = ?")).
		WithArgs(1).
		WillReturnRows(userRows(1, "alice@example.com", "$2a$10$hash"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT role FROM user_roles WHERE user_id = ?")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("USER"))

	user, err := s.Register(&models.RegisterRequest{Email: "alice@example.com", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, []string{"USER"}, user.Roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s, mock := newUserServiceMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (email, password_hash) VALUES (?, ?)")).
		WithArgs("alice@example.com", sqlmock.AnyArg()).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	_, err := s.Register(&models.RegisterRequest{Email: "alice@example.com", Password: "secret"})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterRequiresEmailAndPassword(t *testing.T) {
	s, _ := newUserServiceMock(t)

	_, err := s.Register(&models.RegisterRequest{Email: "", Password: "secret"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = s.Register(&models.RegisterRequest{Email: "alice@example.com", Password: ""})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestValidRoles(t *testing.T) {
	tests := []struct {
		name      string
		requested []string
		want      []string
	}{
		{"default", nil, []string{"USER"}},
		{"unknown filtered", []string{"SUPERUSER"}, []string{"USER"}},
		{"case folded", []string{"admin"}, []string{"ADMIN"}},
		{"known kept", []string{"USER", "ADMIN"}, []string{"USER", "ADMIN"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validRoles(tt.requested))
		})
	}
}

// Unknown account and wrong password must be indistinguishable from the
// returned error alone.
func TestAuthenticateFailuresAreIndistinguishable(t *testing.T) {
	s, mock := newUserServiceMock(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("right-password"), bcrypt.MinCost)
	require.NoError(t, err)

	query := regexp.QuoteMeta("SELECT id, email, password_hash, created_at, updated_at FROM users WHERE email = ?")

	mock.ExpectQuery(query).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at", "updated_at"}))
	_, errNoUser := s.Authenticate(&models.LoginRequest{Email: "nobody@example.com", Password: "whatever"})
	require.Error(t, errNoUser)

	mock.ExpectQuery(query).
		WithArgs("alice@example.com").
		WillReturnRows(userRows(1, "alice@example.com", string(hash)))
	_, errWrongPassword := s.Authenticate(&models.LoginRequest{Email: "alice@example.com", Password: "wrong-password"})
	require.Error(t, errWrongPassword)

	assert.True(t, apperr.IsKind(errNoUser, apperr.KindAuthentication))
	assert.True(t, apperr.IsKind(errWrongPassword, apperr.KindAuthentication))
	assert.Equal(t, errNoUser.Error(), errWrongPassword.Error())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticateSuccess(t *testing.T) {
	s, mock := newUserServiceMock(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, created_at, updated_at FROM users WHERE email = ?")).
		WithArgs("alice@example.com").
		WillReturnRows(userRows(1, "alice@example.com", string(hash)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT role FROM user_roles WHERE user_id = ?")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("USER"))

	user, err := s.Authenticate(&models.LoginRequest{Email: "alice@example.com", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, 1, user.ID)
	assert.Equal(t, []string{"USER"}, user.Roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRehashLegacyPasswords(t *testing.T) {
	s, mock := newUserServiceMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash"}).
			AddRow(1, "alice@example.com", "$2a$10$already-hashed").
			AddRow(2, "bob@example.com", "plaintext-password"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET password_hash = ? WHERE id = ?")).
		WithArgs(sqlmock.AnyArg(), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.RehashLegacyPasswords())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Once every stored password is bcrypt, the sweep issues no writes.
func TestRehashLegacyPasswordsIdempotent(t *testing.T) {
	s, mock := newUserServiceMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash"}).
			AddRow(1, "alice@example.com", "$2a$10$hash-a").
			AddRow(2, "bob@example.com", "$2b$12$hash-b"))

	require.NoError(t, s.RehashLegacyPasswords())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsBcryptHash(t *testing.T) {
	assert.True(t, isBcryptHash("$2a$10$x"))
	assert.True(t, isBcryptHash("$2b$12$x"))
	assert.True(t, isBcryptHash("$2y$10$x"))
	assert.False(t, isBcryptHash("plaintext"))
	assert.False(t, isBcryptHash("$1$md5crypt"))
}
