// Package main provides account role management for FaceFeed operators.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"facefeed/internal/bootstrap"
	"facefeed/internal/config"
	"facefeed/internal/domain"
	"facefeed/internal/repository"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage:")
		fmt.Println("  go run ./cmd/admin set-role <user_id> <role>  - Change a user's role")
		fmt.Println("  go run ./cmd/admin list <role>                - List users with a role")
		fmt.Println("  go run ./cmd/admin roles                      - Count users per role")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{SkipRedis: true})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = rt.Close() }()
	users := rt.Deps.Users

	switch os.Args[1] {
	case "set-role":
		if len(os.Args) < 4 {
			fmt.Println("Usage: go run ./cmd/admin set-role <user_id> <role>")
			os.Exit(1)
		}
		err = setRole(ctx, users, os.Args[2], os.Args[3])
	case "list":
		if len(os.Args) < 3 {
			fmt.Println("Usage: go run ./cmd/admin list <role>")
			os.Exit(1)
		}
		err = listRole(ctx, users, os.Args[2])
	case "roles":
		err = countRoles(ctx, users)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func setRole(ctx context.Context, users repository.UserRepository, userID, rawRole string) error {
	role, err := domain.ParseUserRole(rawRole)
	if err != nil {
		return err
	}
	user, err := users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("find user %s: %w", userID, err)
	}
	if user.Role() == role {
		fmt.Printf("User %s (%s) already has role %s\n", user.Username(), user.ID(), role)
		return nil
	}
	if err := users.Update(ctx, user.WithRole(role)); err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	fmt.Printf("Changed %s (%s) from %s to %s\n", user.Username(), user.ID(), user.Role(), role)
	return nil
}

func listRole(ctx context.Context, users repository.UserRepository, rawRole string) error {
	role, err := domain.ParseUserRole(rawRole)
	if err != nil {
		return err
	}
	page, err := users.FindWithPagination(ctx, repository.UserFilter{Role: role, Limit: repository.MaxLimit})
	if err != nil {
		return err
	}
	if len(page.Items) == 0 {
		fmt.Printf("No users with role %s\n", role)
		return nil
	}
	fmt.Printf("Users with role %s (%d):\n", role, page.Total)
	for _, u := range page.Items {
		fmt.Printf("  %s\t%s\t%s\n", u.ID(), u.Username(), u.Email())
	}
	return nil
}

func countRoles(ctx context.Context, users repository.UserRepository) error {
	counts, err := users.CountByRole(ctx)
	if err != nil {
		return err
	}
	for role, n := range counts {
		fmt.Printf("%-10s %d\n", role, n)
	}
	return nil
}
