package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/iurnickita/vending/internal/config"
	"github.com/iurnickita/vending/internal/store"
)

func main() {
	cfg, err := config.GetConfig()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	flag.Parse()
	args := flag.Args()

	if len(args) < 1 {
		fmt.Println("Error: migration command is required")
		fmt.Println("Usage: migrate [command]")
		fmt.Println("Commands: up, down, status, redo")
		os.Exit(1)
	}
	if cfg.Store.DBDsn == "" {
		log.Fatal("VENDING_DATABASE_DSN is not set")
	}

	command := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	log.Printf("Starting migration: %s", command)

	if err := store.RunMigrations(ctx, cfg.Store.DBDsn, command); err != nil {
		log.Fatalf("Migration error: %v", err)
	}

	fmt.Println("Migration finished successfully")
}
