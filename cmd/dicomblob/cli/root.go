// Package cli implements the dicomblob command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/meigma/dicomblob"
	"github.com/meigma/dicomblob/config"
)

// Build information set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags.
var (
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "dicomblob",
	Short: "Retrieve, transcode, and export DICOM instances from blob storage",
	Long: `Dicomblob retrieves DICOM instances from blob storage, transcodes them
to the transfer syntax a caller asks for, and exports them to a destination.

Configuration is read from ~/.config/dicomblob/config.yaml (or --config),
then overridden by DICOMBLOB_* environment variables and flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default is $XDG_CONFIG_HOME/dicomblob/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose debug logging")
	rootCmd.Version = version
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
	}
	return err
}

// flagKeys maps command flags to the config keys they override.
var flagKeys = map[string]string{
	"addr":            "server.addr",
	"store-dir":       "store.dir",
	"max-concurrency": "retrieve.max_concurrency",
	"jpeg-quality":    "export.jpeg_quality",
}

// loadConfig reads the configuration and applies any flags of cmd that
// override config keys.
func loadConfig(cmd *cobra.Command) (*viper.Viper, *config.Config, error) {
	v, err := config.New(configFile)
	if err != nil {
		return nil, nil, err
	}
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok && bindErr == nil {
			bindErr = v.BindPFlag(key, f)
		}
	})
	if bindErr != nil {
		return nil, nil, bindErr
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}
	return v, cfg, nil
}

// newLogger builds the logger described by cfg. --verbose forces debug
// level.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// signalContext returns a context that is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// formatError converts dicomblob errors to user-friendly messages.
func formatError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, dicomblob.ErrNotFound):
		return fmt.Sprintf("Error: not found: %v", err)
	case errors.Is(err, dicomblob.ErrInvalidReference):
		return fmt.Sprintf("Error: invalid instance reference (want study/series/sop): %v", err)
	case errors.Is(err, dicomblob.ErrFrameNotFound):
		return fmt.Sprintf("Error: no such frame: %v", err)
	case errors.Is(err, dicomblob.ErrUnsupportedTranscode), errors.Is(err, dicomblob.ErrCodecUnsupported):
		return fmt.Sprintf("Error: cannot produce the requested transfer syntax: %v", err)
	case errors.Is(err, dicomblob.ErrStructureInvalid):
		return fmt.Sprintf("Error: invalid DICOM object: %v", err)
	case errors.Is(err, dicomblob.ErrUnsupportedConnection):
		return fmt.Sprintf("Error: unsupported destination: %v", err)
	case errors.Is(err, config.ErrInvalid):
		return fmt.Sprintf("Error: invalid configuration:\n%v", err)
	case errors.Is(err, context.Canceled):
		return "Error: operation canceled"
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
