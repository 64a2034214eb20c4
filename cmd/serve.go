package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pdfinvert/converter"
	"pdfinvert/logging"
	"pdfinvert/server"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the upload web front end",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdown, err := startRuntime(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer shutdown()

		conv, err := converter.New(converter.Options{
			Mode:     converter.ModeRaster,
			DPI:      cfg.Conversion.DPI,
			Renderer: cfg.Conversion.Renderer,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create converter: %w", err)
		}

		srv, err := server.NewServer(logger, conv, server.Options{
			UploadDir:         cfg.Server.UploadDir,
			OutputDir:         cfg.Server.OutputDir,
			MaxUploadBytes:    cfg.Server.MaxUploadBytes,
			ConversionTimeout: cfg.Server.Timeout(),
			DPI:               cfg.Conversion.DPI,
		})
		if err != nil {
			return err
		}

		addr := cfg.Server.Addr()
		if listenAddr != "" {
			addr = listenAddr
		}
		return srv.Run(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "Listen address (default: [server] host:port)")
	serveCmd.Flags().IntVar(&dpi, "dpi", 0, "Requested rendering resolution (default: [conversion] dpi)")
	serveCmd.Flags().StringVar(&renderer, "renderer", "", "Page renderer: 'fitz' or 'poppler'")
	rootCmd.AddCommand(serveCmd)
}
