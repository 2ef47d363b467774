package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/fathom/internal/agent"
	"github.com/user/fathom/internal/agent/tools"
	"github.com/user/fathom/internal/bridge"
	"github.com/user/fathom/internal/cache"
	ctxengine "github.com/user/fathom/internal/context"
	"github.com/user/fathom/internal/delivery"
	"github.com/user/fathom/internal/history"
	"github.com/user/fathom/internal/retention"
	"github.com/user/fathom/internal/scheduler"
	"github.com/user/fathom/internal/server"
	"github.com/user/fathom/internal/tasks"
	"github.com/user/fathom/internal/telegram"
	"github.com/user/fathom/pkg/llm"
	"github.com/user/fathom/pkg/llm/openai"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the fathom daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "fathom.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// History store
	var store history.Store
	if cfg.Postgres.DSN != "" {
		store, err = history.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
	} else {
		store = history.NewMemory()
		slog.Warn("no postgres dsn configured, history is in-memory only")
	}
	defer store.Close()

	// Tool result cache
	var toolCache cache.Store
	if cfg.Redis.Addr != "" {
		toolCache, err = cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
	} else {
		toolCache = cache.NewMemory()
	}
	defer toolCache.Close()

	// Turn engine: local agent loop or remote agent service
	var (
		engine bridge.Engine
		mode   string
	)
	if cfg.Remote.Enabled {
		engine = bridge.NewRemoteEngine(bridge.RemoteConfig{
			BaseURL:     cfg.Remote.BaseURL,
			APIKey:      cfg.Remote.APIKey,
			AssistantID: cfg.Remote.AssistantID,
		})
		mode = "remote"
	} else {
		provider := openai.New(&llm.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		})

		ctxEng, err := ctxengine.New(cfg.LLM.Model, cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)
		if err != nil {
			return fmt.Errorf("create context engine: %w", err)
		}
		if cfg.PromptFile != "" {
			text, err := os.ReadFile(cfg.PromptFile)
			if err != nil {
				return fmt.Errorf("read prompt file: %w", err)
			}
			if err := ctxEng.SetPrompt(string(text)); err != nil {
				return fmt.Errorf("set prompt: %w", err)
			}
		}

		registry := agent.NewRegistry()
		if cfg.Brave.APIKey != "" {
			registry.Register(tools.NewWebSearch(cfg.Brave.APIKey, toolCache))
		} else {
			slog.Warn("web_search disabled (no brave api key)")
		}
		registry.Register(tools.NewReadURL(toolCache))

		engine = bridge.NewLocalEngine(agent.NewLoop(provider, ctxEng, registry, cfg.MaxToolRounds))
		mode = "local"
	}

	br := bridge.New(engine, store, mode)

	// Task store and delivery routes
	taskStore := tasks.NewStore(filepath.Join(cfg.DataDir, "tasks.json"))
	deliveryReg := delivery.NewRegistry()
	deliveryReg.Register("stdout", delivery.Stdout(os.Stdout))
	if cfg.Telegram.Token != "" {
		sender, err := telegram.New(cfg.Telegram.Token)
		if err != nil {
			return fmt.Errorf("create telegram sender: %w", err)
		}
		deliveryReg.Register("telegram:", sender.Deliver)
		slog.Info("telegram delivery registered")
	} else {
		slog.Warn("telegram delivery disabled (no token)")
	}

	// Scheduler: run due tasks headless and route the answer to delivery
	sched := scheduler.New(taskStore, func(sessionKey, query string) {
		answer, err := br.RunHeadless(ctx, bridge.Request{Query: query, SessionKey: sessionKey})
		if err != nil {
			slog.Error("cron task failed", "session", sessionKey, "error", err)
			return
		}
		if answer == "" {
			return
		}
		if err := deliveryReg.Deliver(sessionKey, answer); err != nil {
			slog.Error("cron delivery failed", "session", sessionKey, "error", err)
		}
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	// Retention sweeper
	sweeper := retention.New(store, time.Duration(cfg.RetentionDays)*24*time.Hour)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start retention: %w", err)
	}
	defer sweeper.Stop()

	// HTTP server
	srv := server.New(br, store, taskStore, cfg.Webhook.Secret, cfg.MaxConcurrent)
	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: srv,
	}
	go func() {
		slog.Info("http server started", "listen", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		httpServer.Shutdown(shutCtx)
	}()

	slog.Info("fathom started",
		"data_dir", cfg.DataDir,
		"listen", cfg.Listen,
		"mode", mode,
		"max_concurrent", cfg.MaxConcurrent,
		"max_tool_rounds", cfg.MaxToolRounds,
		"llm_model", cfg.LLM.Model,
		"pid_file", pidPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			// Clean up PID file before re-exec
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				// Re-write PID file since we failed to re-exec
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		// SIGINT or SIGTERM
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}
