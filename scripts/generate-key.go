// Package main generates a random signing secret for AMIGA_JWT_SECRET and prints it as
// a line ready to append to a .env file. Every run produces a new secret; rotating it
// invalidates all issued tokens.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
)

func main() {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("AMIGA_JWT_SECRET=%s\n", hex.EncodeToString(secret))
}
