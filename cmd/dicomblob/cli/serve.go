package cli

import (
	"github.com/spf13/cobra"

	"github.com/meigma/dicomblob/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve retrieve and export over HTTP",
	Long: `Start the HTTP server.

Routes:
  GET  /studies/{study}
  GET  /studies/{study}/series/{series}
  GET  /studies/{study}/series/{series}/instances/{instance}
  GET  /studies/{study}/series/{series}/instances/{instance}/frames/{frames}
  POST /export

Examples:
  dicomblob serve
  dicomblob serve --addr 127.0.0.1:9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "Listen address")
	serveCmd.Flags().Int("max-concurrency", 0, "Maximum parallel store reads per request")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	_, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	e, err := newEnv(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer e.Close()

	h := server.New(e.client, server.WithLogger(e.logger))
	return server.ListenAndServe(ctx, cfg.Server.Addr, h, e.logger)
}
