package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tasklist/tasklist/internal/auth"
	"github.com/tasklist/tasklist/internal/metrics"
	"github.com/tasklist/tasklist/internal/repository"
	"github.com/tasklist/tasklist/internal/service"
)

type output struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Created  bool   `json:"created"`
	IsAdmin  bool   `json:"is_admin"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		username    = flag.String("username", "admin", "Admin username")
		password    = flag.String("password", os.Getenv("ADMIN_PASSWORD"), "Admin password (defaults to ADMIN_PASSWORD)")
		promote     = flag.Bool("promote", false, "Grant admin to an existing user instead of failing")
		migrate     = flag.Bool("migrate", false, "Apply schema migrations first")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *migrate {
		if err := repository.Migrate(ctx, *databaseURL); err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
	}

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	out, err := ensureAdmin(ctx, repo, *username, *password, *promote)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.UserID)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}

// ensureAdmin registers the user through the normal validation path, then
// flips the admin flag, which registration never sets.
func ensureAdmin(ctx context.Context, repo *repository.Repository, username, password string, promote bool) (*output, error) {
	users := service.NewUserService(repo, auth.NewPasswordHasher(auth.DefaultArgon2Params), nil, nil, metrics.NewNoop())

	created := true
	user, err := users.Register(ctx, service.RegisterInput{Username: &username, Password: &password})
	if err != nil {
		var verr *service.ValidationError
		if !promote || !errors.As(err, &verr) {
			return nil, fmt.Errorf("register admin: %w", err)
		}
		user, err = repo.GetUserByUsername(ctx, strings.TrimSpace(username))
		if err != nil {
			return nil, fmt.Errorf("register admin: %w (lookup: %v)", verr, err)
		}
		created = false
	}

	if err := repo.SetUserAdmin(ctx, user.Username, true); err != nil {
		return nil, fmt.Errorf("grant admin: %w", err)
	}

	return &output{UserID: user.ID, Username: user.Username, Created: created, IsAdmin: true}, nil
}
