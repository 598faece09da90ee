// Command tokengen issues a bearer token for a customer id, standing in for the identity
// service in development.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/example/ec-checkout/internal/auth"
	"github.com/example/ec-checkout/internal/config"
)

func main() {
	customerID := flag.Int64("customer", 0, "customer id (required)")
	email := flag.String("email", "", "customer e-mail")
	role := flag.String("role", auth.RoleCustomer, "role: customer or admin")
	flag.Parse()

	if *customerID <= 0 {
		fmt.Fprintln(os.Stderr, "tokengen: -customer must be a positive integer")
		os.Exit(2)
	}
	if *role != auth.RoleCustomer && *role != auth.RoleAdmin {
		fmt.Fprintf(os.Stderr, "tokengen: unknown role %q\n", *role)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "tokengen:", err)
		os.Exit(1)
	}

	token, expiresAt, err := auth.NewJWTService(cfg.JWTSecret, cfg.JWTExpiry).GenerateAccessToken(*customerID, *email, *role)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tokengen:", err)
		os.Exit(1)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format("2006-01-02 15:04:05 MST"))
}
