package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"stock-advisors/internal/cli"
)

func main() {
	_ = godotenv.Load()

	level := slog.LevelInfo
	if debug, _ := os.LookupEnv("ADVISOR_DEBUG"); debug == "1" || debug == "true" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	rootCmd := cli.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
