package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yug-minds/livecore/internal/api"
	"github.com/yug-minds/livecore/internal/identity"
	"github.com/yug-minds/livecore/internal/marker"
	"github.com/yug-minds/livecore/internal/models"
	"github.com/yug-minds/livecore/internal/runtime"
	"github.com/yug-minds/livecore/internal/store"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the refresh and liveness runtime",
	Long: `Run the runtime and its control API.

The dashboard shell posts lifecycle events (focus, visibility, manual)
and form state to the API; livecore throttles refreshes, watches
session liveness, and invalidates the session when it goes inactive
or is superseded elsewhere.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchRun()
	},
}

func init() {
	watchCmd.Flags().String("listen", "", "Control API listen address (default from config)")
	_ = viper.BindPFlag("listen", watchCmd.Flags().Lookup("listen"))
	rootCmd.AddCommand(watchCmd)
}

func watchRun() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	backend := identity.NewHTTPClient(viper.GetString("backend.base_url"), func() string {
		return viper.GetString("backend.token")
	})

	mk, err := buildMarkerStore()
	if err != nil {
		return err
	}

	var st store.Store
	if viper.GetBool("persist") {
		st, err = getStore()
		if err != nil {
			return err
		}
		defer st.Close()
	}

	rt := runtime.New(runtime.Config{
		Provider:          backend,
		Activity:          backend,
		Marker:            mk,
		Store:             st,
		RecorderCapacity:  viper.GetInt("refresh.recorder_capacity"),
		GracePeriod:       viper.GetDuration("liveness.grace_period"),
		CheckInterval:     viper.GetDuration("liveness.check_interval"),
		Debounce:          viper.GetDuration("liveness.debounce"),
		MinSpacing:        viper.GetDuration("liveness.min_spacing"),
		InactivityTimeout: viper.GetDuration("liveness.inactivity_timeout"),
		InactivityWarning: viper.GetDuration("liveness.inactivity_warning"),
		OnInvalid: func(reason models.InvalidReason) {
			logger.Warn("session invalidated", "reason", string(reason))
		},
		OnWarning: func(idle time.Duration) {
			logger.Warn("session approaching inactivity timeout", "idle", idle)
		},
		Logger: logger,
	})

	rt.Start(ctx)
	defer rt.Stop()

	srv := &http.Server{
		Addr:              viper.GetString("listen"),
		Handler:           api.NewServer(rt, st).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("control API listening", "addr", srv.Addr, "client_id", rt.ClientID())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func buildMarkerStore() (marker.Store, error) {
	switch backend := viper.GetString("marker.backend"); backend {
	case "file":
		return marker.NewFileStore(viper.GetString("marker.path")), nil
	case "redis":
		return marker.NewRedisStore(marker.RedisConfig{
			Addr:     viper.GetString("marker.redis.addr"),
			Password: viper.GetString("marker.redis.password"),
			DB:       viper.GetInt("marker.redis.db"),
			Key:      viper.GetString("marker.redis.key"),
			TTL:      viper.GetDuration("marker.redis.ttl"),
		})
	case "memory":
		return marker.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown marker backend: %q (want file, redis, or memory)", backend)
	}
}

func logLevel() slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
