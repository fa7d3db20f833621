package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/samirrijal/safewalk/internal/adapters/postgres"
	"github.com/samirrijal/safewalk/internal/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down>")
	}

	cfg, err := config.Load("safewalk-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN(), 2)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	switch os.Args[1] {
	case "up":
		applied, err := db.Migrate(ctx)
		if err != nil {
			log.Fatalf("migrate: %v", err)
		}
		for _, name := range applied {
			fmt.Printf("OK  %s\n", name)
		}
		log.Printf("%d migrations applied", len(applied))
	case "down":
		if err := db.DropSafetyMap(ctx); err != nil {
			log.Fatalf("drop: %v", err)
		}
		log.Println("safety map tables dropped")
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}
