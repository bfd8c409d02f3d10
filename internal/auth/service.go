package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/david/scholarship-finder/internal/models"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrInvalidCreds = errors.New("invalid credentials")

	jwtSecretOnce    sync.Once
	jwtSecretRuntime []byte
	jwtSecretErr     error
)

func jwtSecretFromEnv() ([]byte, error) {
	jwtSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
		if secret != "" {
			jwtSecretRuntime = []byte(secret)
			return
		}

		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			jwtSecretErr = fmt.Errorf("failed to generate JWT fallback secret: %w", err)
			return
		}

		jwtSecretRuntime = []byte(base64.RawURLEncoding.EncodeToString(buf))
		log.Print("JWT_SECRET is not set; using ephemeral in-memory fallback secret")
	})

	if jwtSecretErr != nil {
		return nil, jwtSecretErr
	}
	if len(jwtSecretRuntime) == 0 {
		return nil, errors.New("JWT secret unavailable")
	}

	return jwtSecretRuntime, nil
}

type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

func (s *Service) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	var exists bool
	err := s.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)", req.Email).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing failed: %w", err)
	}

	var user User
	err = s.db.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, cgpa, program)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, cgpa, program, created_at
	`, req.Email, string(hash), req.CGPA, req.Program).Scan(
		&user.ID, &user.Email, &user.CGPA, &user.Program, &user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert failed: %w", err)
	}

	token, err := generateToken(user.ID)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{Token: token, User: user}, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	var user User
	err := s.db.QueryRow(ctx, `
		SELECT id, email, password_hash, cgpa, program, created_at
		FROM users WHERE email = $1
	`, req.Email).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.CGPA, &user.Program, &user.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrInvalidCreds
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCreds
	}

	token, err := generateToken(user.ID)
	if err != nil {
		return nil, err
	}

	user.PasswordHash = ""
	return &AuthResponse{Token: token, User: user}, nil
}

func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (*User, error) {
	var user User
	err := s.db.QueryRow(ctx, `
		SELECT id, email, cgpa, program, created_at
		FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &user.Email, &user.CGPA, &user.Program, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, req UpdateProfileRequest) (*User, error) {
	var user User
	err := s.db.QueryRow(ctx, `
		UPDATE users SET cgpa = $2, program = $3
		WHERE id = $1
		RETURNING id, email, cgpa, program, created_at
	`, userID, req.CGPA, req.Program).Scan(
		&user.ID, &user.Email, &user.CGPA, &user.Program, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func generateToken(userID uuid.UUID) (string, error) {
	secretKey, err := jwtSecretFromEnv()
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"sub": userID.String(),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secretKey)
}

// Saved scholarships

func (s *Service) SaveScholarship(ctx context.Context, userID, scholarshipID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO saved_scholarships (user_id, scholarship_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, scholarship_id) DO NOTHING
	`, userID, scholarshipID)
	return err
}

func (s *Service) UnsaveScholarship(ctx context.Context, userID, scholarshipID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM saved_scholarships
		WHERE user_id = $1 AND scholarship_id = $2
	`, userID, scholarshipID)
	return err
}

func (s *Service) GetSavedScholarships(ctx context.Context, userID uuid.UUID) ([]models.Scholarship, error) {
	rows, err := s.db.Query(ctx, `
		SELECT sc.id, sc.title, sc.source_url, sc.deadline, sc.minimum_grade,
		       sc.study_levels, sc.eligible_fields, sc.provider_name, sc.status
		FROM scholarships sc
		JOIN saved_scholarships ss ON sc.id = ss.scholarship_id
		WHERE ss.user_id = $1
		ORDER BY ss.saved_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Scholarship
	for rows.Next() {
		var sc models.Scholarship
		var providerName *string
		err := rows.Scan(
			&sc.ID, &sc.Title, &sc.SourceURL, &sc.Deadline, &sc.MinimumGrade,
			&sc.StudyLevels, &sc.EligibleFields, &providerName, &sc.Status,
		)
		if err != nil {
			return nil, err
		}
		if providerName != nil {
			sc.ProviderName = *providerName
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
