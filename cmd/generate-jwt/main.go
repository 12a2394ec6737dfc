package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fiatramp/internal/config"
	"fiatramp/internal/middleware"
)

// Mints an admin bearer token directly from the configured JWT secret, for
// operators who need API access without going through the login endpoint.
func main() {
	configPath := flag.String("config", "", "path to config file")
	ttl := flag.Duration("ttl", 0, "token lifetime (default: admin.tokenTTLHours from config)")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg := config.AppConfig.Admin
	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "admin.jwtSecret is not configured")
		os.Exit(1)
	}

	lifetime := *ttl
	if lifetime == 0 {
		hours := cfg.TokenTTLHours
		if hours <= 0 {
			hours = 24
		}
		lifetime = time.Duration(hours) * time.Hour
	}

	now := time.Now()
	claims := middleware.AdminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			Issuer:    "fiatramp",
			Subject:   "admin",
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Admin token:")
	fmt.Println(token)
	fmt.Println()
	fmt.Printf("Expires: %s\n", claims.ExpiresAt.Time.Format(time.RFC3339))
	fmt.Println()
	fmt.Printf("Usage: curl -H \"Authorization: Bearer %s\" ...\n", token)
}
