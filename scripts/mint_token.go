package main

import (
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/khoahotran/pulse-media/internal/config"
	"github.com/khoahotran/pulse-media/internal/domain/user"
	"github.com/khoahotran/pulse-media/pkg/auth"
)

// Mints a token for local testing against the API, signed with the
// configured secret. TOKEN_ROLE defaults to editor; TOKEN_PRINCIPAL_ID to a
// fresh id.
func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatalf("JWT_SECRET is not set")
	}

	role := user.Role(os.Getenv("TOKEN_ROLE"))
	if role == "" {
		role = user.RoleEditor
	}
	if !role.Valid() {
		log.Fatalf("unknown role %q", role)
	}

	id := uuid.New()
	if raw := os.Getenv("TOKEN_PRINCIPAL_ID"); raw != "" {
		if id, err = uuid.Parse(raw); err != nil {
			log.Fatalf("invalid TOKEN_PRINCIPAL_ID: %v", err)
		}
	}

	token, err := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenLifespan).GenerateToken(user.Principal{ID: id, Role: role})
	if err != nil {
		log.Fatalf("cannot sign token: %v", err)
	}

	fmt.Fprintf(os.Stderr, "principal %s (%s)\n", id, role)
	fmt.Println(token)
}
