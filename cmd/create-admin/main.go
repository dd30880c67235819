/*
main.go - Bootstrap an admin account

PURPOSE:
  Creates an active admin user directly in the SQLite store, so the first
  admin can sign in and create everyone else through /admin/users.

COMMAND-LINE FLAGS:
  -config    YAML config file (optional)
  -db        SQLite database path, overrides database.path
  -username  Admin username (prompted when empty)
  -password  Admin password (prompted when empty)

EXAMPLES:
  ./create-admin -username=admin
  CWP_DATABASE_PATH=/srv/works.db ./create-admin -username=admin -password=s3cret
*/
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rkv/capital-works/auth"
	"github.com/rkv/capital-works/config"
	"github.com/rkv/capital-works/store/sqlite"
	"github.com/rkv/capital-works/works"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	username := flag.String("username", "", "Admin username")
	password := flag.String("password", "", "Admin password")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	in := bufio.NewReader(os.Stdin)
	name := strings.TrimSpace(*username)
	if name == "" {
		name = prompt(in, "Admin username: ")
	}
	if name == "" {
		log.Fatal("Username is required.")
	}
	pass := strings.TrimSpace(*password)
	if pass == "" {
		pass = prompt(in, "Admin password: ")
	}

	hash, err := auth.HashPassword(pass, cfg.Security.BcryptCost)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	err = store.CreateUser(context.Background(), works.User{
		ID:           uuid.NewString(),
		Username:     name,
		PasswordHash: hash,
		Role:         works.RoleAdmin,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	})
	if errors.Is(err, works.ErrDuplicateUsername) {
		log.Fatalf("Error: user %q already exists", name)
	}
	if err != nil {
		log.Fatalf("Failed to create admin: %v", err)
	}

	fmt.Printf("Created admin user: %s\n", name)
}

func prompt(in *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}
