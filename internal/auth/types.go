package auth

import (
	"time"

	"github.com/google/uuid"
)

// User is a student account. The CGPA/program pair doubles as the default
// profile for the authenticated matching endpoint.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	CGPA         float64   `json:"cgpa"`
	Program      string    `json:"program"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type SignupRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	CGPA     float64 `json:"cgpa"`
	Program  string  `json:"program"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	CGPA    float64 `json:"cgpa"`
	Program string  `json:"program"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
