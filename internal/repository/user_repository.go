package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/eris-support/support-desk/internal/domain"
)

// UserRepository defines persistence access for operators.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// ListWithTelegram returns operators that have at least one linked chat id.
	ListWithTelegram(ctx context.Context) ([]domain.User, error)
}

type userRepository struct {
	db beginner
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(db beginner) UserRepository {
	return &userRepository{db: db}
}

const userSelect = `
        SELECT u.id, u.email, u.password_hash, u.full_name, u.role, u.created_at,
               COALESCE(array_agg(t.telegram_id ORDER BY t.id) FILTER (WHERE t.telegram_id IS NOT NULL), '{}')
        FROM users u
        LEFT JOIN user_telegram_ids t ON t.user_id = u.id`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (email, password_hash, full_name, role)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at`
	const linkTelegram = `INSERT INTO user_telegram_ids (user_id, telegram_id) VALUES ($1, $2)`

	if user.Role == "" {
		user.Role = domain.UserRoleOperator
	}
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, query,
			user.Email,
			user.PasswordHash,
			user.FullName,
			user.Role,
		).Scan(&user.ID, &user.CreatedAt); err != nil {
			return err
		}
		for _, tgID := range user.TelegramIDs {
			if _, err := tx.Exec(ctx, linkTelegram, user.ID, tgID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.fetchSingle(ctx, userSelect+` WHERE u.id=$1 GROUP BY u.id`, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.fetchSingle(ctx, userSelect+` WHERE LOWER(u.email)=LOWER($1) GROUP BY u.id`, email)
}

func (r *userRepository) ListWithTelegram(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.Query(ctx, userSelect+` GROUP BY u.id HAVING COUNT(t.telegram_id) > 0 ORDER BY u.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *user)
	}
	return result, rows.Err()
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FullName,
		&user.Role,
		&user.CreatedAt,
		&user.TelegramIDs,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
