// Command pokedex is a terminal browser for the Pokémon catalog.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Sternrassler/catalog-browser/internal/config"
	"github.com/Sternrassler/catalog-browser/internal/ui"
	"github.com/Sternrassler/catalog-browser/pkg/browse"
	"github.com/Sternrassler/catalog-browser/pkg/client"
	"github.com/Sternrassler/catalog-browser/pkg/logging"
	tea "github.com/charmbracelet/bubbletea"
)

// defaultLogFile keeps log output off the terminal the TUI draws on.
const defaultLogFile = "pokedex.log"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pokedex: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Log.File == "" {
		cfg.Log.File = defaultLogFile
	}

	_, logFile, err := logging.SetupFile(cfg.Logging())
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger := logging.NewLogger("pokedex")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := cfg.RedisClient()
	if rdb != nil {
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, response cache disabled")
			rdb.Close()
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	httpClient, err := client.New(cfg.Client(rdb))
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer httpClient.Close()

	orchestrator := browse.New(cfg.Service(httpClient), browse.WithPageSize(cfg.Browse.PageSize))
	updates, unsubscribe := orchestrator.Subscribe()
	defer unsubscribe()

	runDone := make(chan error, 1)
	go func() { runDone <- orchestrator.Run(ctx) }()

	logger.Info().
		Str("catalog", cfg.Catalog.BaseURL).
		Str("category", cfg.Category.BaseURL).
		Msg("Starting pokedex")

	program := tea.NewProgram(ui.NewModel(ctx, orchestrator, updates), tea.WithAltScreen())
	_, uiErr := program.Run()

	cancel()
	if err := <-runDone; err != nil {
		logger.Error().Err(err).Msg("Orchestrator stopped with error")
	}
	if uiErr != nil {
		return fmt.Errorf("run ui: %w", uiErr)
	}
	return nil
}
