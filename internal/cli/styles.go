package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tutu-network/painter/internal/domain"
)

func init() {
	rootCmd.AddCommand(stylesCmd)
}

var stylesCmd = &cobra.Command{
	Use:     "styles",
	Aliases: []string{"list", "ls"},
	Short:   "List styles and whether their weights are downloaded",
	RunE:    runStyles,
}

func runStyles(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	list, err := d.Assets.List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STYLE\tLOCAL\tSIZE\tFETCHED\tLAST USED")
	for _, a := range list {
		local, size, fetched, used := "no", "-", "-", "-"
		if a.Local {
			local = "yes"
			size = domain.HumanSize(a.SizeBytes)
		}
		if !a.FetchedAt.IsZero() {
			fetched = a.FetchedAt.Format("2006-01-02 15:04")
		}
		if !a.LastUsed.IsZero() {
			used = a.LastUsed.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.Style, local, size, fetched, used)
	}
	return w.Flush()
}
