package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tutu-network/painter/internal/daemon"
)

func init() {
	formCmd.Flags().StringVar(&formHost, "host", "", "Host to listen on (overrides config)")
	formCmd.Flags().IntVar(&formPort, "port", 0, "Port to listen on (overrides config)")
	formCmd.Flags().StringVar(&formBackend, "backend", "", "Backend host (overrides MODEL_SERVER_HOST)")
	rootCmd.AddCommand(formCmd)
}

var (
	formHost    string
	formPort    int
	formBackend string
)

var formCmd = &cobra.Command{
	Use:   "form",
	Short: "Start the browser upload form",
	Long: `Start the HTML form (default 0.0.0.0:7860). The style list is read
from the backend once at startup, so start 'painter serve' first.`,
	RunE: runForm,
}

func runForm(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if formHost != "" {
		cfg.Form.Host = formHost
	}
	if formPort > 0 {
		cfg.Form.Port = formPort
	}
	if formBackend != "" {
		cfg.Form.BackendHost = formBackend
	}

	return daemon.ServeForm(context.Background(), cfg, logger)
}
