// Package users stores accounts and the dealer/technician marketplace
// profiles attached to them.
package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dgyard/backend/internal/apperr"
	"github.com/dgyard/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, u *models.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, phone, display_name, role, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.Phone, u.DisplayName, u.Role, u.PasswordHash)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Conflictf("an account with this email already exists")
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, phone, display_name, role, password_hash, created_at, updated_at
		FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, phone, display_name, role, password_hash, created_at, updated_at
		FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Phone, &u.DisplayName, &u.Role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &u, nil
}

func (r *Repository) UpsertTechnicianProfile(ctx context.Context, p *models.TechnicianProfile) error {
	var bank []byte
	if p.Bank != nil {
		var err error
		bank, err = json.Marshal(p.Bank)
		if err != nil {
			return fmt.Errorf("encoding bank details: %w", err)
		}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO technician_profiles (user_id, rating, service_area, bank_details)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			service_area = EXCLUDED.service_area,
			bank_details = EXCLUDED.bank_details,
			updated_at = now()`,
		p.UserID, p.Rating, p.ServiceArea, bank)
	if err != nil {
		return fmt.Errorf("upserting technician profile: %w", err)
	}
	return nil
}

func (r *Repository) GetTechnicianProfile(ctx context.Context, userID uuid.UUID) (*models.TechnicianProfile, error) {
	var p models.TechnicianProfile
	var bank []byte
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, rating, service_area, bank_details, created_at, updated_at
		FROM technician_profiles WHERE user_id = $1`, userID).
		Scan(&p.UserID, &p.Rating, &p.ServiceArea, &bank, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("technician profile not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scanning technician profile: %w", err)
	}
	if len(bank) > 0 {
		p.Bank = &models.BankDetails{}
		if err := json.Unmarshal(bank, p.Bank); err != nil {
			return nil, fmt.Errorf("decoding bank details: %w", err)
		}
	}
	return &p, nil
}

func (r *Repository) UpsertDealerProfile(ctx context.Context, p *models.DealerProfile) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO dealer_profiles (user_id, shop_name, city)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			shop_name = EXCLUDED.shop_name,
			city = EXCLUDED.city,
			updated_at = now()`,
		p.UserID, p.ShopName, p.City)
	if err != nil {
		return fmt.Errorf("upserting dealer profile: %w", err)
	}
	return nil
}

func (r *Repository) GetDealerProfile(ctx context.Context, userID uuid.UUID) (*models.DealerProfile, error) {
	var p models.DealerProfile
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, shop_name, city, created_at, updated_at
		FROM dealer_profiles WHERE user_id = $1`, userID).
		Scan(&p.UserID, &p.ShopName, &p.City, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("dealer profile not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scanning dealer profile: %w", err)
	}
	return &p, nil
}

// AdjustTechnicianRating applies delta to the stored rating, clamped at 0.
// It runs in the caller's transaction so a cancellation and its rating
// penalty commit together. Upsert form: a technician provisioned without a
// profile row (admin backfill, legacy import) must still be adjustable, as
// the caller's whole transaction would otherwise roll back.
func (r *Repository) AdjustTechnicianRating(ctx context.Context, tx pgx.Tx, technicianID uuid.UUID, delta float64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO technician_profiles (user_id, rating)
		VALUES ($1, GREATEST($3 + $2, 0))
		ON CONFLICT (user_id) DO UPDATE SET
			rating = GREATEST(technician_profiles.rating + $2, 0),
			updated_at = now()`,
		technicianID, delta, models.DefaultTechnicianRating)
	if err != nil {
		return fmt.Errorf("adjusting technician rating: %w", err)
	}
	return nil
}
