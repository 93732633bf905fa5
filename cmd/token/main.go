// Command token prints a bearer token for local testing of the order API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ariefcatur/furniture-orders/internal/config"
	"github.com/ariefcatur/furniture-orders/internal/httpx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	user := flag.String("user", "dev-user", "user id (sub claim)")
	admin := flag.Bool("admin", false, "issue an admin token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	role := httpx.RoleUser
	if *admin {
		role = httpx.RoleAdmin
	}
	tok, err := httpx.NewAuth(cfg.JWTSecret, "furniture-orders").Issue(*user, role, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
