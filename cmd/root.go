package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"pdfinvert/config"
	"pdfinvert/converter"
	"pdfinvert/converter/raster"
	"pdfinvert/logging"
	"pdfinvert/telemetry"
)

var (
	outputFile string
	dpi        int
	renderer   string
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "pdfinvert <input.pdf>",
	Short: "Invert the colors of a PDF",
	Long: `Renders every page of a PDF, inverts its colors and writes a new PDF
with the same page count and page sizes. Pages become JPEG images, so text
in the output is not selectable.

Pages are rendered at --dpi (minimum 600). Large pages use a fixed DPI:
  - area above 1,000,000 pt²: 600 DPI
  - area above 500,000 pt²:   700 DPI

The default build encodes pages with image/jpeg and ignores the optimized
coding flag. Build with -tags govips (cgo and libvips required) for
libvips JPEG export with optimized coding.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		inputFile := args[0]

		if !strings.EqualFold(filepath.Ext(inputFile), ".pdf") {
			return fmt.Errorf("input file is not a PDF: %s", inputFile)
		}
		if _, err := os.Stat(inputFile); os.IsNotExist(err) {
			return fmt.Errorf("input file does not exist: %s", inputFile)
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

		if outputFile == "" {
			outputFile = defaultOutputPath(inputFile)
		}

		shutdown, err := startRuntime(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer shutdown()

		opts := converter.Options{
			InputFile:  inputFile,
			OutputFile: outputFile,
			Mode:       converter.ModeRaster,
			DPI:        cfg.Conversion.DPI,
			Renderer:   cfg.Conversion.Renderer,
		}

		fmt.Printf("Converting %s (renderer %s, %d DPI)...\n", inputFile, opts.Renderer, opts.DPI)
		result, err := converter.Convert(cmd.Context(), opts, logger)
		if err != nil {
			return fmt.Errorf("conversion failed: %w", err)
		}

		fmt.Printf("Successfully created: %s (%d page(s), %.1fx input size)\n", outputFile, result.Pages, result.SizeRatio)
		return nil
	},
}

// defaultOutputPath maps report.pdf to report_inverted.pdf.
func defaultOutputPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + "_inverted.pdf"
}

// loadConfig reads the config file and environment, then applies any flags
// the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("dpi") {
		cfg.Conversion.DPI = dpi
	}
	if flags.Changed("renderer") {
		cfg.Conversion.Renderer = renderer
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// startRuntime brings up tracing and the image runtime. The returned func
// tears both down.
func startRuntime(ctx context.Context, cfg *config.Config, logger *log.Logger) (func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	if err := raster.Startup(); err != nil {
		_ = shutdownTracing(context.Background())
		return nil, fmt.Errorf("failed to start image runtime: %w", err)
	}

	return func() {
		raster.Shutdown()
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: trace, debug, info, warn or error")

	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output PDF file (default: <input>_inverted.pdf)")
	rootCmd.Flags().IntVar(&dpi, "dpi", raster.DefaultDPI, "Requested rendering resolution")
	rootCmd.Flags().StringVar(&renderer, "renderer", raster.RendererFitz, "Page renderer: 'fitz' or 'poppler'")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
