// Command migrate applies or rolls back the identity schema.
//
//	migrate        apply pending migrations
//	migrate down   roll back the latest migration
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/identity-store-pg/internal/migrations"
	"github.com/ovaphlow/pitchfork/identity-store-pg/pkg/database"
	"github.com/ovaphlow/pitchfork/identity-store-pg/pkg/utilities"
)

func main() {
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}

	sqlDB, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch direction {
	case "up":
		err = migrations.Up(ctx, sqlDB)
	case "down":
		err = migrations.Down(ctx, sqlDB)
	default:
		sugar.Fatalf("unknown direction %q, want up or down", direction)
	}
	if err != nil {
		sugar.Fatalf("migrate %s: %v", direction, err)
	}
	sugar.Infow("migrations done", "direction", direction)
}
