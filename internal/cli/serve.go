package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tutu-network/painter/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveDevice, "device", "", "Execution device: cpu or cuda (overrides config)")
	serveCmd.Flags().BoolVar(&serveMetrics, "metrics", false, "Expose Prometheus /metrics")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost    string
	servePort    int
	serveDevice  string
	serveMetrics bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the style transfer API server",
	Long: `Start the backend API server (default 127.0.0.1:8000).

Endpoints:
  GET  /model_list           available styles
  POST /transform/{style}    multipart field image_data, returns image/jpeg`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if serveDevice != "" {
		cfg.Inference.Device = serveDevice
	}
	if serveMetrics {
		cfg.Telemetry.Prometheus = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	d, err := daemon.NewWithConfig(cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Serve(context.Background())
}
