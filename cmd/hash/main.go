// Package main prints the bcrypt hash of a password. Use it to seed the first admin
// row in the users table before any account exists to call POST /api/auth/register.
package main

import (
	"fmt"
	"os"

	"github.com/amiga-fleet/amiga-backend/internal/auth"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <password>\n", os.Args[0])
		os.Exit(2)
	}
	hash, err := auth.HashPassword(os.Args[1], 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
