package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/engine"
)

func readInput(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func cliLogger() zerolog.Logger {
	if !rootFlags.verbose {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func loadEngine(ctx context.Context, logger zerolog.Logger) (engine.Engine, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return engine.Engine{}, cfg, fmt.Errorf("load config: %w", err)
	}

	gateway, err := engine.NewGateway(ctx, cfg, logger)
	if err != nil {
		return engine.Engine{}, cfg, err
	}

	return engine.New(gateway, nil, cfg, validator.New(validator.WithRequiredStructEnabled()), logger), cfg, nil
}

func writeJSON(out io.Writer, value any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
