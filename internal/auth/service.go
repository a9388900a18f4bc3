// Package auth issues and validates the JWTs carrying user identity and
// role. Passwords are bcrypt-hashed; tokens are HS256 with a 24h lifetime.
package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dgyard/backend/internal/apperr"
	"github.com/dgyard/backend/internal/models"
)

type userStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpsertTechnicianProfile(ctx context.Context, p *models.TechnicianProfile) error
	UpsertDealerProfile(ctx context.Context, p *models.DealerProfile) error
}

type Service interface {
	Register(ctx context.Context, email, password, phone, displayName string, role models.Role) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, *models.User, error)
	ValidateToken(token string) (uuid.UUID, models.Role, error)
}

type service struct {
	users  userStore
	secret []byte
	now    func() time.Time
}

func NewService(users userStore, secret string) Service {
	return &service{users: users, secret: []byte(secret), now: time.Now}
}

var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func (s *service) Register(ctx context.Context, email, password, phone, displayName string, role models.Role) (*models.User, error) {
	switch role {
	case models.RoleDealer, models.RoleTechnician, models.RoleUser:
	default:
		// Admins are provisioned out of band.
		return nil, apperr.Validationf("invalid role %q", role)
	}
	if email == "" || displayName == "" {
		return nil, apperr.Validationf("email and display name are required")
	}
	if len(password) < 8 {
		return nil, apperr.Validationf("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		ID:           uuid.New(),
		Email:        email,
		Phone:        phone,
		DisplayName:  displayName,
		Role:         role,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	// The marketplace profile rows exist from day one so rating adjustments
	// and dashboard reads never find a registered user without one.
	switch role {
	case models.RoleTechnician:
		err = s.users.UpsertTechnicianProfile(ctx, &models.TechnicianProfile{
			UserID: u.ID,
			Rating: models.DefaultTechnicianRating,
		})
	case models.RoleDealer:
		err = s.users.UpsertDealerProfile(ctx, &models.DealerProfile{UserID: u.ID})
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if apperr.IsKind(err, apperr.NotFound) {
		return "", nil, apperr.Authorizationf("invalid credentials")
	}
	if err != nil {
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", nil, apperr.Authorizationf("invalid credentials")
	}
	token, err := s.issueToken(u.ID, u.Role)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

func (s *service) issueToken(userID uuid.UUID, role models.Role) (string, error) {
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: string(role),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(token string) (uuid.UUID, models.Role, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return uuid.Nil, "", apperr.Authorizationf("invalid token")
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return uuid.Nil, "", apperr.Authorizationf("invalid token")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, "", apperr.Authorizationf("invalid token subject")
	}
	return id, models.Role(c.Role), nil
}
