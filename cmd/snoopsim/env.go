package main

import (
	"log"

	"github.com/joho/godotenv"
)

// loadEnv layers an optional .env file from the working directory on
// top of the process environment; CLI flags still win over either. A
// missing .env is not an error.
func loadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Printf("snoopsim: no .env file loaded: %v", err)
	}
}
