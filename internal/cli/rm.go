package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(rmCmd)
}

var rmCmd = &cobra.Command{
	Use:   "rm STYLE...",
	Short: "Remove downloaded style weights",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRm,
}

func runRm(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	for _, name := range args {
		if err := d.Assets.Remove(name); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", name)
	}
	return nil
}
