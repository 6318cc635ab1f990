// Command migrate 管理 sayhi 数据库的 goose 迁移。
//
// 用法: migrate [--config path] [--dsn dsn] up|down|status
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"sayhi/internal/config"
	"sayhi/internal/migrate"
	"sayhi/internal/pkg/logger"
)

func main() {
	flags := pflag.NewFlagSet("sayhi-migrate", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", config.DefaultPath, "path to JSON config file")
	dsn := flags.String("dsn", "", "MySQL DSN, overrides mysql.dsn")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	command := "up"
	if flags.NArg() > 0 {
		command = flags.Arg(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *dsn != "" {
		cfg.MySQL.DSN = *dsn
	}
	log := logger.NewDefault(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "up":
		err = migrate.Up(ctx, cfg.MySQL.DSN)
	case "down":
		err = migrate.Down(ctx, cfg.MySQL.DSN)
	case "status":
		err = migrate.Status(ctx, cfg.MySQL.DSN)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want up, down or status)\n", command)
		os.Exit(2)
	}
	if err != nil {
		log.Error("migrate failed", slog.String("command", command), slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("migrate done", slog.String("command", command))
}
