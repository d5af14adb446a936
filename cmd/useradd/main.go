// Command useradd provisions a login identity in the user store.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/otpgate/otpgate/internal/identity"
	"github.com/otpgate/otpgate/internal/infra"
	"github.com/otpgate/otpgate/internal/logging"
)

func main() {
	flags := pflag.NewFlagSet("useradd", pflag.ContinueOnError)
	username := flags.String("username", "", "login name")
	phone := flags.String("phone", "", "E.164 phone number that receives verification codes")
	password := flags.String("password", "", "initial password (8 to 72 bytes)")
	databaseURL := flags.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	cost := flags.Int("bcrypt-cost", 0, "bcrypt cost, 0 for the library default")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	if *username == "" || *phone == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "useradd: --username, --phone and --password are required")
		flags.PrintDefaults()
		os.Exit(2)
	}

	logger := logging.New(os.Getenv("LOG_LEVEL"), "otpgate-useradd")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := infra.NewPostgresPool(ctx, *databaseURL)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := identity.NewPostgresRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	user, err := identity.NewService(repo, *cost).Register(ctx, identity.Registration{
		Username: *username,
		Phone:    *phone,
		Password: *password,
	})
	if err != nil {
		logger.Error("register user", "username", *username, "error", err)
		os.Exit(1)
	}

	logger.Info("user created", "id", user.ID, "username", user.Username)
}
