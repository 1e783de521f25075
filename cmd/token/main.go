// Command token mints a bearer token for a user id, for local testing
// against a server sharing the same AUTH_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"chat-core/auth"
	"chat-core/domain"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AuthSecret        string        `envconfig:"AUTH_SECRET" required:"true"`
	AuthTokenDuration time.Duration `envconfig:"AUTH_TOKEN_DURATION" default:"24h"`
}

func main() {
	userID := flag.String("user", "", "user id carried by the token")
	flag.Parse()

	_ = godotenv.Load()
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	if *userID == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(2)
	}
	token, err := auth.NewTokens(config.AuthSecret, config.AuthTokenDuration).Generate(domain.UserID(*userID))
	if err != nil {
		fmt.Fprintf(os.Stderr, "token generation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
