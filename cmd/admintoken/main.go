// admintoken mints an operator admin token and the bcrypt hash the server
// expects in ADMIN_TOKEN_HASH. The plaintext token is shown once; only the
// hash is stored.
package main

import (
	"fmt"
	"os"

	"agegate/pkg/secrets"
)

func main() {
	token, err := secrets.Generate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate token: %v\n", err)
		os.Exit(1)
	}
	hash, err := secrets.Hash(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("admin token (send as X-Admin-Token): %s\n", token)
	fmt.Printf("ADMIN_TOKEN_HASH=%s\n", hash)
}
