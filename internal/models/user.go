package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleDealer     Role = "DEALER"
	RoleTechnician Role = "TECHNICIAN"
	RoleUser       Role = "USER"
)

// SystemActorID identifies postings made by background processes (sweeps)
// rather than a human actor.
var SystemActorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	DisplayName  string    `json:"display_name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DefaultTechnicianRating is the rating a fresh technician profile starts at.
const DefaultTechnicianRating = 5.0

// TechnicianProfile carries the marketplace-facing technician state. Rating
// is docked 0.5 (floor 0) on technician-initiated cancellation.
type TechnicianProfile struct {
	UserID      uuid.UUID    `json:"user_id"`
	Rating      float64      `json:"rating"`
	ServiceArea string       `json:"service_area,omitempty"`
	Bank        *BankDetails `json:"bank,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type DealerProfile struct {
	UserID    uuid.UUID `json:"user_id"`
	ShopName  string    `json:"shop_name,omitempty"`
	City      string    `json:"city,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
