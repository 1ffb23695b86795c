package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/storyforge/storyforge-agent/internal/api"
	"github.com/storyforge/storyforge-agent/internal/config"
	"github.com/storyforge/storyforge-agent/internal/db"
	"github.com/storyforge/storyforge-agent/internal/generate"
	"github.com/storyforge/storyforge-agent/internal/logging"
	"github.com/storyforge/storyforge-agent/internal/playback"
	"github.com/storyforge/storyforge-agent/internal/provider"
	"github.com/storyforge/storyforge-agent/internal/providerconf"
	"github.com/storyforge/storyforge-agent/internal/session"
	"github.com/storyforge/storyforge-agent/internal/ui"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	// A local .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.ClipsDir(), 0755); err != nil {
		return fmt.Errorf("failed to create clips dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting storyforge agent", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := session.NewRepository(database.Conn())

	deviceID, err := ensureDeviceID(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	printBanner(cfg.Port(), authToken, deviceID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providerStore := providerconf.NewStore(cfg.ProviderEndpoint(), cfg.ProviderCredential(), repo, logger)
	reconciler, err := providerconf.NewReconciler(ctx, providerStore, repo, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize provider reconciler: %w", err)
	}

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Port())
	localClient := provider.NewStubClient(baseURL, cfg.ClipsDir(), logger)
	selector := provider.NewSelector(providerStore, reconciler, localClient, logger)

	orchestrator := generate.New(repo, selector, logging.WithComponent(logger, "generate"))

	apiServer := api.NewServer(api.ServerConfig{
		Port:               cfg.Port(),
		Orchestrator:       orchestrator,
		Sessions:           repo,
		ProviderStore:      providerStore,
		Reconciler:         reconciler,
		Clips:              playback.NewClipServer(cfg.ClipsDir(), logging.WithComponent(logger, "playback")),
		DefaultSegments:    cfg.DefaultSegments(),
		DefaultClipSeconds: cfg.DefaultClipSeconds(),
		AllowedOrigins:     cfg.AllowedOrigins(),
		Logger:             logging.WithComponent(logger, "api"),
		StartTime:          startTime,
		DeviceID:           deviceID,
		Version:            config.Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
		<-quitCh
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Orchestrator: orchestrator,
			Reconciler:   reconciler,
			Logger:       logging.WithComponent(logger, "ui"),
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
		<-quitCh
		tray.Quit()
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func printBanner(port int, authToken, deviceID string) {
	heading := color.New(color.FgCyan, color.Bold)
	label := color.New(color.FgWhite, color.Bold)

	fmt.Println()
	heading.Printf("  STORYFORGE AGENT v%s\n", config.Version)
	fmt.Println()
	label.Print("  API URL:    ")
	fmt.Printf("http://127.0.0.1:%d\n", port)
	label.Print("  Auth Token: ")
	fmt.Println(authToken)
	label.Print("  Device ID:  ")
	fmt.Println(deviceID[:16] + "...")
	fmt.Println()
}

func ensureDeviceID(repo session.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "device_id")
	if err == nil && existing != "" {
		return existing, nil
	}

	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return "", err
	}
	deviceID := hex.EncodeToString(idBytes)

	if err := repo.SetConfig(ctx, "device_id", deviceID); err != nil {
		return "", err
	}

	return deviceID, nil
}

func ensureAuthToken(repo session.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "auth_token")
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, "auth_token", token); err != nil {
		return "", err
	}

	return token, nil
}
