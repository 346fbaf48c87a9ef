package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/edupaila/community-server-go/internal/audit"
	"github.com/edupaila/community-server-go/internal/config"
	"github.com/edupaila/community-server-go/internal/database"
	"github.com/edupaila/community-server-go/internal/repository"
	"github.com/edupaila/community-server-go/internal/util"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: DATABASE_URL=... go run scripts/create-admin.go <email> [display name]\n")
		os.Exit(1)
	}

	email := util.NormalizeAddress(os.Args[1])
	if !util.IsEmailLike(email) {
		fmt.Fprintf(os.Stderr, "Error: %q is not an email address\n", os.Args[1])
		os.Exit(1)
	}
	name := util.LocalPart(email)
	if len(os.Args) > 2 {
		name = strings.TrimSpace(strings.Join(os.Args[2:], " "))
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Fprintf(os.Stderr, "Error: DATABASE_URL is not set\n")
		os.Exit(1)
	}

	db, err := database.Connect(databaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.MigrationTimeout)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	account, err := repository.NewAccountRepository(db.DB).EnsureAdmin(ctx, email, name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventAdminBootstrap,
		Owner:     account.Email,
		AccountID: account.ID,
		Details:   map[string]any{"source": "create-admin"},
	})

	fmt.Printf("admin %s (%s)\n", account.Email, account.ID)
}
