// Command relaytoken mints a bearer token for a user, signed with the same
// secret the server verifies against. Intended for operators and local
// development; there is no self-service token endpoint.
//
// Usage:
//
//	relaytoken -user alice
//	relaytoken -user alice -ttl 15m
//
// The signing secret, issuer, and default lifetime come from the environment
// (JWT_SECRET, JWT_ISSUER, TOKEN_TTL), exactly as the server reads them.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/tbourn/go-chat-relay/internal/auth"
	"github.com/tbourn/go-chat-relay/internal/config"
)

func main() {
	user := flag.String("user", "", "user ID to embed in the token (required)")
	ttl := flag.Duration("ttl", 0, "token lifetime; defaults to TOKEN_TTL from the environment")
	flag.Parse()

	if *user == "" {
		fmt.Fprintln(os.Stderr, "relaytoken: -user is required")
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg := config.MustLoad()

	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = cfg.Auth.TokenTTL
	}

	token, err := auth.GenerateToken([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer, *user, lifetime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "relaytoken: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "user=%s ttl=%s expires=%s\n",
		*user, lifetime, time.Now().Add(lifetime).UTC().Format(time.RFC3339))
}
