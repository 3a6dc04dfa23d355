package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutu-network/painter/internal/domain"
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show")
	rootCmd.AddCommand(historyCmd)
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent transforms",
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	recs, err := d.Service.History(historyLimit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No transforms yet. Try 'painter transform mosaic photo.jpg'.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tSTYLE\tINPUT\tOUTPUT\tTOOK\tRESULT")
	for _, r := range recs {
		result := domain.HumanSize(r.OutBytes)
		if r.Error != "" {
			result = "error: " + r.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%dx%d\t%dx%d\t%s\t%s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.Style,
			r.InWidth, r.InHeight,
			r.OutWidth, r.OutHeight,
			r.Duration.Round(time.Millisecond),
			result,
		)
	}
	return w.Flush()
}
