// Command issuetoken mints admin and service tokens for operators and the task subsystem.
package main

import (
	"fmt"
	"log"

	"github.com/earnhub/backend/internal/config"
	"github.com/earnhub/backend/internal/services"
	flag "github.com/spf13/pflag"
)

func main() {
	subject := flag.StringP("sub", "s", "", "token subject (operator or service name)")
	role := flag.StringP("role", "r", string(services.RoleAdmin), "admin or service")
	flag.Parse()

	config.Bootstrap()

	r := services.Role(*role)
	if r == services.RoleUser {
		log.Fatal("user tokens are issued by /auth/login")
	}

	auth := services.NewAuthService(nil, nil, nil)
	token, expiresAt, err := auth.IssueToken(*subject, r)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	fmt.Println(token)
	log.Printf("Token for %s (%s) expires %s", *subject, r, expiresAt.Format("2006-01-02 15:04 MST"))
}
