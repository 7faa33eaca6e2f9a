// Command listings-admin grants administrator rights in the listings
// database and prints a bearer token for the granted user.
//
//	listings-admin -email ops@example.com [-ttl 24h] [-migrate]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/listings/internal/admin"
	"github.com/JonMunkholm/listings/internal/auth"
	"github.com/JonMunkholm/listings/internal/config"
	"github.com/JonMunkholm/listings/internal/logging"
	"github.com/JonMunkholm/listings/internal/postgres"
)

func main() {
	var (
		email   string
		ttl     time.Duration
		migrate bool
	)
	flag.StringVar(&email, "email", "", "email of the user to promote (created when missing)")
	flag.DurationVar(&ttl, "ttl", 24*time.Hour, "lifetime of the printed token")
	flag.BoolVar(&migrate, "migrate", false, "apply the schema before granting")
	flag.Parse()

	if email == "" {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if cfg.Database.Driver != "postgres" {
		slog.Error("listings-admin needs the postgres storage driver", "driver", cfg.Database.Driver)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	grant, err := admin.Provision(ctx, postgres.NewStore(pool), verifier, email, ttl)
	if err != nil {
		slog.Error("failed to grant admin", "error", err)
		os.Exit(1)
	}

	slog.Info("granted admin", "email", grant.User.Email, "user_id", grant.User.ID,
		"expires_at", grant.ExpiresAt.Format(time.RFC3339))
	fmt.Println(grant.Token)
}
