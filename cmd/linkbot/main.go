package main

import "github.com/joho/godotenv"

func main() {
	// Optional; real deployments set env or use a config file.
	_ = godotenv.Load()
	Execute()
}
