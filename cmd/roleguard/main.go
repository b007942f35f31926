package main

import (
	"errors"
	"io/fs"
	"log"

	"github.com/joho/godotenv"

	"roleguard/cmd/internal/app"
)

func main() {
	// A local .env is optional; real environment variables take precedence.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
