package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"inventory-engine/internal/adapters/cli"
	"inventory-engine/internal/adapters/repl"
	webAdapter "inventory-engine/internal/adapters/web"
	"inventory-engine/internal/app"
	"inventory-engine/internal/bootstrap"
	"inventory-engine/internal/config"
	"inventory-engine/internal/logger"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadEnv()

	appLogger := logger.Must(logger.Config{
		IsDevelopment:     cfg.IsDevelopment(),
		Encoding:          "console",
		Level:             "warn",
		DisableCaller:     true,
		DisableStacktrace: true,
	})
	defer appLogger.Sync()

	args := os.Args[1:]

	// token does not need the database.
	if len(args) > 0 && args[0] == "token" {
		if err := issueToken(cfg, args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	ctx := context.Background()
	stack, err := bootstrap.Build(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Could not initialize engine", zap.Error(err))
	}
	defer stack.Close()

	operator := app.SystemIdentity("stockctl")

	if len(args) == 0 || args[0] == "console" {
		repl.NewSession(stack.Service, operator, os.Stdin, os.Stdout).Run(ctx)
		return
	}

	if err := cli.Run(ctx, stack.Service, operator, args, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stack.Close()
		os.Exit(1)
	}
}

// issueToken prints a signed token for the web API.
// Usage: stockctl token <user> <role> [shop-id]
func issueToken(cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: stockctl token <user> <admin|manager|cashier> [shop-id]")
	}
	id := app.Identity{UserID: args[0], Role: app.Role(args[1])}
	switch id.Role {
	case app.RoleAdmin, app.RoleManager, app.RoleCashier:
	default:
		return fmt.Errorf("unknown role %q", args[1])
	}
	if len(args) > 2 {
		shopID, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid shop id %q", args[2])
		}
		id.ShopID = &shopID
	}
	token, err := webAdapter.IssueToken(cfg.JWT.SecretKey, id, 12*time.Hour)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
