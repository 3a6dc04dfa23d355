package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutu-network/painter/internal/domain"
	"github.com/tutu-network/painter/internal/form"
)

func init() {
	transformCmd.Flags().StringVarP(&transformOut, "output", "o", "", "Output file (default <input>-<style>.jpg)")
	transformCmd.Flags().StringVar(&transformRemote, "remote", "", "Send to a running backend (e.g. http://localhost:8000) instead of running in-process")
	rootCmd.AddCommand(transformCmd)
}

var (
	transformOut    string
	transformRemote string
)

var transformCmd = &cobra.Command{
	Use:   "transform STYLE INPUT",
	Short: "Apply a style to an image file",
	Args:  cobra.ExactArgs(2),
	RunE:  runTransform,
}

func runTransform(cmd *cobra.Command, args []string) error {
	style, input := args[0], args[1]

	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	out := transformOut
	if out == "" {
		base := strings.TrimSuffix(input, filepath.Ext(input))
		out = fmt.Sprintf("%s-%s.jpg", base, style)
	}

	start := time.Now()
	var result []byte
	if transformRemote != "" {
		result, err = form.NewClient(transformRemote).Transform(context.Background(), style, filepath.Base(input), data)
	} else {
		result, err = transformLocal(style, data)
	}
	if err != nil {
		return err
	}

	if err := os.WriteFile(out, result, 0o644); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%s) in %s\n", out, domain.HumanSize(int64(len(result))), time.Since(start).Round(time.Millisecond))
	return nil
}

func transformLocal(style string, data []byte) ([]byte, error) {
	d, err := openDaemon()
	if err != nil {
		return nil, err
	}
	defer d.Close()

	return d.Service.Transform(context.Background(), style, data)
}
