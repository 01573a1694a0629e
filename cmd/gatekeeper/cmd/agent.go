package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/finsync/gatekeeper/api"
	"github.com/finsync/gatekeeper/gate"
	"github.com/finsync/gatekeeper/internal/config"
	"github.com/finsync/gatekeeper/passcode"
	"github.com/finsync/gatekeeper/storage"
	bboltstorage "github.com/finsync/gatekeeper/storage/bbolt"
)

var (
	listenAddr string
	dataDir    string
)

const keyDeviceID = "device.id"

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Serve the loopback control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if listenAddr != "" {
			cfg.ListenAddr = listenAddr
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}

		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
		log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		store, err := bboltstorage.NewStoreFromFile(filepath.Join(cfg.DataDir, "gatekeeper.db"), nil)
		if err != nil {
			return fmt.Errorf("opening secure store: %w", err)
		}
		defer store.Close()

		deviceID, err := ensureDeviceID(store)
		if err != nil {
			return err
		}

		vault := passcode.New(store)
		auth := gate.NewStoredAuth(store)
		nav := gate.NavigatorFunc(func(_ context.Context, dest gate.Destination) error {
			log.Info().Str("destination", string(dest)).Msg("navigate")
			return nil
		})
		ctrl := gate.NewController(store, vault, auth, nav,
			gate.WithDebounce(cfg.NavDebounce),
			gate.WithRelockAfter(cfg.RelockAfter),
		)
		defer ctrl.Close()

		if err := ctrl.Start(cmd.Context()); err != nil {
			return fmt.Errorf("starting gate: %w", err)
		}

		a := api.New(vault, ctrl,
			api.WithLogger(log),
			api.WithStoredAuth(auth),
			api.WithDeviceID(deviceID),
		)

		r := chi.NewRouter()
		r.Use(middleware.Recoverer)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})
		r.Mount("/v1", a.Router())

		server := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		log.Info().
			Str("addr", cfg.ListenAddr).
			Str("data_dir", cfg.DataDir).
			Str("device_id", deviceID).
			Msg("agent started")

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

// ensureDeviceID returns the persisted install identifier, creating it on
// first run.
func ensureDeviceID(store storage.SecureStore) (string, error) {
	id, err := store.Get(keyDeviceID)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("reading device id: %w", err)
	}
	id = uuid.NewString()
	if err := store.Set(keyDeviceID, id); err != nil {
		return "", fmt.Errorf("writing device id: %w", err)
	}
	return id, nil
}

func init() {
	rootCmd.AddCommand(agentCmd)
	agentCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Loopback address to listen on (overrides GATEKEEPER_LISTEN)")
	agentCmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory for persistent data (overrides GATEKEEPER_DATA_DIR)")
}
