// Command hashpw prints the OPERATOR_PASSWORD_HASH value for a password
// read from stdin.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dexa-wallet/backend/internal/config"
	"github.com/dexa-wallet/backend/internal/services"
)

func main() {
	config.Load(".env")

	password, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && password == "" {
		log.Fatalf("read password: %v", err)
	}
	password = strings.TrimRight(password, "\r\n")
	if len(password) < 8 {
		log.Fatal("password must be at least 8 characters")
	}

	hash, err := services.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	fmt.Println(hash)
}
