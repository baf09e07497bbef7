package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skillmarket/marketplace-backend/internal/models"
)

// ErrUserNotFound возвращается, когда запись пользователя не найдена.
var ErrUserNotFound = errors.New("user not found")

// UserRepository отвечает за работу с таблицами users, profiles и user_sessions.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository создаёт экземпляр репозитория.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create создаёт нового пользователя с базовым профилем. Балансовые колонки
// профиля инициализируются нулями и дальше меняются только относительными
// инкрементами со стороны LedgerRepository.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("user repository: begin tx %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO users (email, username, password_hash, role, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id, created_at, updated_at
	`

	if err := tx.QueryRowxContext(
		ctx, query,
		user.Email, user.Username, user.PasswordHash, user.Role,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return fmt.Errorf("user repository: create %w", err)
	}

	profileQuery := `
		INSERT INTO profiles (user_id, display_name, available_balance, pending_balance, total_withdrawn, updated_at)
		VALUES ($1, $2, 0, 0, 0, NOW())
	`
	if _, err := tx.ExecContext(ctx, profileQuery, user.ID, user.Username); err != nil {
		return fmt.Errorf("user repository: create profile %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("user repository: commit %w", err)
	}

	return nil
}

// GetByEmail возвращает пользователя по email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	query := `
		SELECT id, email, username, password_hash, role, is_active, last_login_at, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get by email %w", err)
	}

	return &user, nil
}

// GetByID возвращает пользователя по идентификатору.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	query := `
		SELECT id, email, username, password_hash, role, is_active, last_login_at, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get by id %w", err)
	}

	return &user, nil
}

// UpsertProfile создаёт или обновляет профиль пользователя. Балансовые
// колонки намеренно не участвуют в апдейте.
func (r *UserRepository) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	query := `
		INSERT INTO profiles (user_id, display_name, bio, gateway_account, available_balance, pending_balance, total_withdrawn, updated_at)
		VALUES ($1, $2, $3, $4, 0, 0, 0, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
			bio = EXCLUDED.bio,
			gateway_account = EXCLUDED.gateway_account,
			updated_at = NOW()
		RETURNING user_id, display_name, bio, gateway_account, updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx, query,
		profile.UserID, profile.DisplayName, profile.Bio, profile.GatewayAccount,
	).Scan(
		&profile.UserID,
		&profile.DisplayName,
		&profile.Bio,
		&profile.GatewayAccount,
		&profile.UpdatedAt,
	); err != nil {
		return fmt.Errorf("user repository: upsert profile %w", err)
	}

	return nil
}

// GetProfile возвращает профиль пользователя.
func (r *UserRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	query := `SELECT user_id, display_name, bio, gateway_account, updated_at FROM profiles WHERE user_id = $1`

	var profile models.Profile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get profile %w", err)
	}

	return &profile, nil
}

// GetGatewayAccount возвращает счёт исполнителя в платёжном шлюзе.
// Пустая строка означает, что исполнитель ещё не подключил выплаты.
func (r *UserRepository) GetGatewayAccount(ctx context.Context, userID uuid.UUID) (string, error) {
	var account sql.NullString
	query := `SELECT gateway_account FROM profiles WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &account, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("user repository: get gateway account %w", err)
	}

	return account.String, nil
}

// CreateSession сохраняет новую сессию пользователя.
func (r *UserRepository) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO user_sessions (user_id, refresh_token, user_agent, ip_address, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	if err := r.db.QueryRowxContext(
		ctx,
		query,
		session.UserID,
		session.RefreshToken,
		session.UserAgent,
		session.IPAddress,
		session.ExpiresAt,
	).Scan(&session.ID, &session.CreatedAt); err != nil {
		return fmt.Errorf("user repository: create session %w", err)
	}

	return nil
}

// GetSessionByToken возвращает активную сессию по refresh токену.
func (r *UserRepository) GetSessionByToken(ctx context.Context, refreshToken string) (*models.Session, error) {
	var session models.Session
	query := `
		SELECT id, user_id, refresh_token, user_agent, ip_address, expires_at, created_at
		FROM user_sessions
		WHERE refresh_token = $1 AND expires_at > NOW()
	`
	if err := r.db.GetContext(ctx, &session, query, refreshToken); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get session %w", err)
	}

	return &session, nil
}

// DeleteSession удаляет сессию по refresh токену.
func (r *UserRepository) DeleteSession(ctx context.Context, refreshToken string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE refresh_token = $1`, refreshToken); err != nil {
		return fmt.Errorf("user repository: delete session %w", err)
	}

	return nil
}

// UpdateLastLoginAt обновляет время последнего входа пользователя.
func (r *UserRepository) UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = NOW() WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("user repository: update last login at %w", err)
	}

	return nil
}
