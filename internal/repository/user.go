package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"classifieds/internal/domain"
	"classifieds/internal/infrastructure/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const userColumns = `id, email, name, phone, password_hash, role, status, created_at, updated_at`

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context, query string, limit, offset int) ([]*domain.User, error)
	Count(ctx context.Context, query string) (int, error)
	ListAll(ctx context.Context) ([]*domain.User, error)
	UpdateStatus(ctx context.Context, id int64, status domain.UserStatus) error
	UpdateRole(ctx context.Context, id int64, role domain.Role) error
	CountByStatus(ctx context.Context) (map[domain.UserStatus]int, error)
}

type mysqlUserRepository struct {
	db      *sql.DB
	metrics *metrics.RepositoryMetrics
	tracer  trace.Tracer
}

func NewMysqlUserRepository(db *sql.DB, metrics *metrics.RepositoryMetrics) UserRepository {
	return &mysqlUserRepository{
		db:      db,
		metrics: metrics,
		tracer:  otel.Tracer("classifieds/repository"),
	}
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u            domain.User
		role, status string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.PasswordHash, &role, &status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	u.Status = domain.UserStatus(status)
	return &u, nil
}

func (r *mysqlUserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CreateUser")
	defer span.End()

	status := "success"
	defer r.metrics.Observe("CreateUser", &status, time.Now())

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, name, phone, password_hash, role, status) VALUES (?, ?, ?, ?, ?, ?)`,
		user.Email, user.Name, user.Phone, user.PasswordHash, string(user.Role), string(user.Status))
	if err != nil {
		if isDuplicate(err) {
			status = "duplicate"
			return nil, ErrDuplicate
		}
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	span.SetAttributes(attribute.Int64("user.id", id))
	return r.GetByID(ctx, id)
}

func (r *mysqlUserRepository) getOne(ctx context.Context, name, where string, arg interface{}) (*domain.User, error) {
	ctx, span := r.tracer.Start(ctx, "Repository "+name)
	defer span.End()

	status := "success"
	defer r.metrics.Observe(name, &status, time.Now())

	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s`, userColumns, where)
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
			return nil, err
		}
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (r *mysqlUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getOne(ctx, "GetUserByID", "id = ?", id)
}

func (r *mysqlUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, "GetUserByEmail", "email = ?", email)
}

func userWhere(query string) (string, []interface{}) {
	if query == "" {
		return "", nil
	}
	like := "%" + query + "%"
	return " WHERE email LIKE ? OR name LIKE ? OR phone LIKE ?", []interface{}{like, like, like}
}

func (r *mysqlUserRepository) List(ctx context.Context, query string, limit, offset int) ([]*domain.User, error) {
	where, args := userWhere(query)
	args = append(args, limit, offset)
	return r.list(ctx, "ListUsers",
		fmt.Sprintf(`SELECT %s FROM users%s ORDER BY id DESC LIMIT ? OFFSET ?`, userColumns, where), args...)
}

func (r *mysqlUserRepository) ListAll(ctx context.Context) ([]*domain.User, error) {
	return r.list(ctx, "ListAllUsers", fmt.Sprintf(`SELECT %s FROM users ORDER BY id`, userColumns))
}

func (r *mysqlUserRepository) list(ctx context.Context, name, query string, args ...interface{}) ([]*domain.User, error) {
	ctx, span := r.tracer.Start(ctx, "Repository "+name)
	defer span.End()

	status := "success"
	defer r.metrics.Observe(name, &status, time.Now())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			recordError(span, &status, err)
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return users, nil
}

func (r *mysqlUserRepository) Count(ctx context.Context, query string) (int, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CountUsers")
	defer span.End()

	status := "success"
	defer r.metrics.Observe("CountUsers", &status, time.Now())

	where, args := userWhere(query)

	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users"+where, args...).Scan(&count); err != nil {
		recordError(span, &status, err)
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func (r *mysqlUserRepository) update(ctx context.Context, name, query string, args ...interface{}) error {
	ctx, span := r.tracer.Start(ctx, "Repository "+name)
	defer span.End()

	status := "success"
	defer r.metrics.Observe(name, &status, time.Now())

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		recordError(span, &status, err)
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		recordError(span, &status, err)
		return fmt.Errorf("failed to retrieve rows affected: %w", err)
	}
	if rowsAffected == 0 {
		status = "not_found"
		return sql.ErrNoRows
	}
	return nil
}

func (r *mysqlUserRepository) UpdateStatus(ctx context.Context, id int64, s domain.UserStatus) error {
	return r.update(ctx, "UpdateUserStatus",
		`UPDATE users SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, string(s), id)
}

func (r *mysqlUserRepository) UpdateRole(ctx context.Context, id int64, role domain.Role) error {
	return r.update(ctx, "UpdateUserRole",
		`UPDATE users SET role = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, string(role), id)
}

func (r *mysqlUserRepository) CountByStatus(ctx context.Context) (map[domain.UserStatus]int, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CountUsersByStatus")
	defer span.End()

	status := "success"
	defer r.metrics.Observe("CountUsersByStatus", &status, time.Now())

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM users GROUP BY status`)
	if err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to count users by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.UserStatus]int)
	for rows.Next() {
		var (
			s string
			n int
		)
		if err := rows.Scan(&s, &n); err != nil {
			recordError(span, &status, err)
			return nil, fmt.Errorf("failed to scan user count: %w", err)
		}
		counts[domain.UserStatus(s)] = n
	}
	if err := rows.Err(); err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return counts, nil
}
