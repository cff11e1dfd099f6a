package main

import (
	"github.com/spf13/cobra"
	"github.com/xaenox/frontdesk/internal/api"
	"go.uber.org/zap"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// nil collaborators must stay untyped nil for the API checks
	var conns api.Connections
	if a.connections != nil {
		conns = a.connections
	}
	var k api.Knowledge
	if a.indexer != nil {
		k = a.indexer
	}

	server := api.New(a.assistant, conns, k, a.store, a.verifier, api.Options{
		RequireAuth:    cfg.Server.RequireAuth,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		OAuthRedirect:  cfg.Server.OAuthRedirect,
		AllowedOrigin:  cfg.Server.AllowedOrigin,
	}, logger.Named("api"))

	logger.Info("Starting HTTP API", zap.String("addr", cfg.Server.Addr))
	return server.ListenAndServe(ctx, cfg.Server.Addr)
}
