// Command token mints a staff token for local testing:
//
//	JWT_SECRET=dev go run ./cmd/token -uid w1 -roles waiter,cashier
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-realtime-floor/internal/auth"
	"github.com/ariefcatur/go-realtime-floor/internal/config"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	uid := flag.String("uid", "", "user id (token subject)")
	name := flag.String("name", "", "display name")
	roles := flag.String("roles", auth.RoleWaiter, "comma separated roles: "+strings.Join(auth.Roles, ", "))
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}
	tok, err := auth.NewTokens(cfg.JWTSecret, *ttl).Sign(*uid, *name, strings.Split(*roles, ","))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
