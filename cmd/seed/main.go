// seed inserts development sample data for local testing. Run via go run ./cmd/seed.
// Idempotent: skips inserts that already exist.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"lm-identity/internal/config"
	"lm-identity/internal/db"
	otpdomain "lm-identity/internal/otp/domain"
	otprepo "lm-identity/internal/otp/repository"
	"lm-identity/internal/security"
	userdomain "lm-identity/internal/user/domain"
	userrepo "lm-identity/internal/user/repository"
)

const (
	registerFunctionality = "REGISTER"
	registerTTLSeconds    = 120
	registerAttemptLimit  = 3

	devUserEmail = "dev@example.com"
	devPassword  = "password123"
	devRole      = "developer"

	// Fixed so reruns and sibling dev services agree on the organization;
	// users.organization_id is a UUID column.
	devOrgID = "6a07f8a2-34d5-4b18-9d58-1f4f2f6ac001"

	// invitedEmail is pre-provisioned but not registered, for exercising the
	// OTP registration flow end to end.
	invitedEmail = "invited@example.com"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	otpRepo := otprepo.NewPostgresRepository(conn)
	users := userrepo.NewPostgresRepository(conn)

	policy, err := otpRepo.FunctionalityByName(ctx, registerFunctionality)
	if err != nil {
		log.Fatalf("functionality check: %v", err)
	}
	if policy == nil {
		if err := otpRepo.CreateFunctionality(ctx, &otpdomain.Functionality{
			ID:           uuid.New().String(),
			Name:         registerFunctionality,
			TimeToLive:   registerTTLSeconds,
			AttemptLimit: registerAttemptLimit,
		}); err != nil {
			log.Fatalf("create functionality: %v", err)
		}
		log.Printf("created %s functionality (ttl %ds, %d attempts)", registerFunctionality, registerTTLSeconds, registerAttemptLimit)
	}

	existing, err := users.GetByEmail(ctx, devUserEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Println("Seed already applied (dev@example.com exists). Skipping users.")
		return
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	passwordHash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()
	if err := users.Create(ctx, &userdomain.User{
		ID:             uuid.New().String(),
		Email:          devUserEmail,
		FirstName:      "Dev",
		LastName:       "User",
		Role:           devRole,
		OrganizationID: devOrgID,
		PasswordHash:   passwordHash,
		Registered:     true,
		CreatedAt:      now,
	}); err != nil {
		log.Fatalf("create dev user: %v", err)
	}

	if err := users.Create(ctx, &userdomain.User{
		ID:             uuid.New().String(),
		Email:          invitedEmail,
		Role:           devRole,
		OrganizationID: devOrgID,
		Registered:     false,
		CreatedAt:      now,
	}); err != nil {
		log.Fatalf("create invited user: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Dev login: %s / %s\n", devUserEmail, devPassword)
	fmt.Printf("Invited (unregistered): %s\n", invitedEmail)
}
