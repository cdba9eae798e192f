package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/researchhub/identity/internal/auth"
	"github.com/researchhub/identity/internal/model"
	"github.com/researchhub/identity/internal/repository"
)

type output struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Tier     string `json:"tier"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		email       = flag.String("email", "admin@researchhub.local", "Admin email")
		username    = flag.String("username", "admin", "Admin username")
		password    = flag.String("password", "", "Admin password (generated when empty)")
		tier        = flag.String("tier", model.TierEnterprise, "Subscription tier (free, pro, enterprise)")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}
	if _, ok := model.TierQuotas[*tier]; !ok {
		fmt.Fprintln(os.Stderr, "invalid tier:", *tier)
		os.Exit(1)
	}

	plaintext := *password
	if plaintext == "" {
		generated, err := generatePassword()
		if err != nil {
			fmt.Fprintln(os.Stderr, "generate password:", err)
			os.Exit(1)
		}
		plaintext = generated
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := repository.Migrate(ctx, *databaseURL); err != nil {
		fmt.Fprintln(os.Stderr, "migrate database:", err)
		os.Exit(1)
	}

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	if existing, err := repo.GetUserByEmail(ctx, *email); err == nil {
		fmt.Fprintf(os.Stderr, "email %s already used by user %s\n", *email, existing.ID)
		os.Exit(1)
	}

	hash, err := auth.HashPassword(plaintext)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hash password:", err)
		os.Exit(1)
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:           ulid.Make().String(),
		Email:        strings.ToLower(strings.TrimSpace(*email)),
		Username:     strings.ToLower(strings.TrimSpace(*username)),
		PasswordHash: hash,
		IsActive:     true,
		IsVerified:   true,
		Role:         model.RoleAdmin,
		Tier:         *tier,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := repo.CreateUser(ctx, user); err != nil {
		fmt.Fprintln(os.Stderr, "create user:", err)
		os.Exit(1)
	}

	out := output{
		UserID:   user.ID,
		Email:    user.Email,
		Username: user.Username,
		Password: plaintext,
		Role:     user.Role,
		Tier:     user.Tier,
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.Password)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}

// generatePassword produces a random password that satisfies the account
// password policy.
func generatePassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	// The random tail supplies length; the fixed prefix guarantees the
	// required character classes.
	return "Aa1!" + base64.RawURLEncoding.EncodeToString(buf), nil
}
