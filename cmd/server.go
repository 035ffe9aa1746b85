package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ziadkadry99/lanne/internal/auth"
	"github.com/ziadkadry99/lanne/internal/chat"
	"github.com/ziadkadry99/lanne/internal/server"
)

var serverPort int

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP chat server",
	Long:  `Starts the lanne HTTP server with the chat API, NDJSON streaming, the WebSocket chat endpoint, conversation history and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = serverPort
		}

		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		// Graceful shutdown.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		var verifier *auth.Verifier
		if cfg.Auth.Enabled {
			verifier, err = auth.NewVerifier(os.Getenv(authSecretEnvVar), cfg.Auth.Issuer, cfg.Auth.TokenTTL)
			if err != nil {
				return fmt.Errorf("auth enabled but %s is not usable: %w", authSecretEnvVar, err)
			}
		} else {
			logger.Warn("authentication disabled, user ids are taken from X-User-ID and /api/admin is closed")
		}

		srv := server.New(server.Config{
			Port:           cfg.Server.Port,
			AllowAll:       cfg.Server.AllowAll,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Admins:         cfg.Auth.Admins,
		}, server.Deps{
			DB:            a.db,
			Chat:          chat.NewHandler(a.orchestrator, a.agent, chat.Options{AllowedOrigins: cfg.Server.AllowedOrigins, Logger: logger}),
			Conversations: a.conversations,
			Verifier:      verifier,
			Gatherer:      a.registry,
			Logger:        logger,
		})

		go func() {
			<-ctx.Done()
			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("shutdown incomplete", zap.Error(err))
			}
		}()

		chunks := 0
		if a.knowledge != nil {
			chunks = a.knowledge.Count()
		}
		logger.Info("lanne server starting",
			zap.String("version", Version),
			zap.Int("port", cfg.Server.Port),
			zap.String("database", cfg.Store.Path),
			zap.Int("knowledge_chunks", chunks),
			zap.Bool("agent", cfg.Agent.Enabled),
			zap.Bool("auth", cfg.Auth.Enabled))

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "port to listen on (overrides server.port)")
	rootCmd.AddCommand(serverCmd)
}
