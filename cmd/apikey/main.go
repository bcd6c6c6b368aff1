package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"gorm.io/gorm"

	"github.com/ManuelReschke/ReceiptFox/app/models"
	"github.com/ManuelReschke/ReceiptFox/app/repository"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/database"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/env"
)

// Creates the user if needed and prints a fresh API key. The previous key stops working.
func main() {
	email := flag.String("email", "", "user email (required)")
	name := flag.String("name", "", "display name for a new user")
	plan := flag.String("plan", string(entitlements.PlanFree), "plan: free, premium or premium_max")
	admin := flag.Bool("admin", false, "create the user with the admin role")
	flag.Parse()

	if *email == "" {
		flag.Usage()
		os.Exit(1)
	}

	env.SetupEnvFile()
	db, err := database.Connect(database.LoadConfig())
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	users := repository.NewUserRepository(db)
	ctx := context.Background()

	user, err := users.GetByEmail(*email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		role := models.ROLE_USER
		if *admin {
			role = models.ROLE_ADMIN
		}
		displayName := *name
		if displayName == "" {
			displayName = *email
		}
		user, err = models.CreateUser(displayName, *email, role)
		if err != nil {
			log.Fatalf("Invalid user: %v", err)
		}
		if err := users.Create(user); err != nil {
			log.Fatalf("Failed to create user: %v", err)
		}
		log.Printf("Created user %d (%s)", user.ID, user.Email)
	} else if err != nil {
		log.Fatalf("Failed to load user: %v", err)
	}

	settings, err := users.GetSettings(ctx, user.ID)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	settings.Plan = string(entitlements.ParsePlan(*plan))
	raw, err := settings.IssueAPIKey()
	if err != nil {
		log.Fatalf("Failed to generate API key: %v", err)
	}
	if err := users.SaveSettings(ctx, settings); err != nil {
		log.Fatalf("Failed to store API key: %v", err)
	}

	fmt.Printf("user_id=%d plan=%s\napi_key=%s\n", user.ID, settings.Plan, raw)
}
