package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/telefile/telefile/internal/config"
	"github.com/telefile/telefile/internal/services/publisher"
)

func main() {
	fmt.Println("GoFile Connectivity Test")
	fmt.Println("========================")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Printf("API base: %s\n", cfg.GoFile.APIBase)
	fmt.Printf("Default server: %s\n", cfg.GoFile.DefaultServer)
	fmt.Println()

	client := publisher.NewClient(http.DefaultClient, &cfg.GoFile)

	fmt.Println("Discovering upload server...")
	server := client.DiscoverServer(context.Background())
	fmt.Printf("Upload server: %s\n", server)

	if cfg.GoFile.AccountToken == "" {
		fmt.Println("GOFILE_API_TOKEN not set - uploads will be anonymous")
		return
	}

	fmt.Println("Verifying account token...")
	account, err := client.VerifyToken(context.Background(), cfg.GoFile.AccountToken)
	if err != nil {
		log.Fatalf("Token check failed: %v", err)
	}
	fmt.Printf("Account: %s (%s tier)\n", account.Email, account.Tier)
}
