package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/painter/internal/domain"
)

func init() {
	pullCmd.Flags().BoolVarP(&pullForce, "force", "f", false, "Download again even if the weights exist")
	pullCmd.Flags().BoolVar(&pullAll, "all", false, "Pull every enabled style")
	rootCmd.AddCommand(pullCmd)
}

var (
	pullForce bool
	pullAll   bool
)

var pullCmd = &cobra.Command{
	Use:   "pull [STYLE...]",
	Short: "Download style weights ahead of first use",
	RunE:  runPull,
}

func runPull(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	names := args
	if pullAll {
		names = domain.StyleNames(d.Assets.Styles())
	}
	if len(names) == 0 {
		return fmt.Errorf("name at least one style or pass --all")
	}

	for _, name := range names {
		fmt.Printf("Pulling %s...\n", name)
		bar := newProgressBar()
		if err := d.Assets.Pull(context.Background(), name, pullForce, bar.callback); err != nil {
			clearLine()
			return err
		}
	}
	return nil
}
