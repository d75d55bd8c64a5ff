package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/local/pictopdf/internal/preview"
)

var previewCmd = &cobra.Command{
	Use:   "preview <document>",
	Short: "Render a page of a document to JPEG",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreview,
}

func init() {
	previewCmd.Flags().Int("page", 1, "page number, starting at 1")
	previewCmd.Flags().Int("dpi", 72, "render resolution")
	previewCmd.Flags().Int("quality", 85, "JPEG quality")
	previewCmd.Flags().Bool("gray", false, "render in grayscale")
	previewCmd.Flags().StringP("out", "o", "", "output file (default <document>_p<page>.jpg)")

	rootCmd.AddCommand(previewCmd)
}

func runPreview(cmd *cobra.Command, args []string) error {
	src := args[0]
	page, _ := cmd.Flags().GetInt("page")
	dpi, _ := cmd.Flags().GetInt("dpi")
	quality, _ := cmd.Flags().GetInt("quality")
	gray, _ := cmd.Flags().GetBool("gray")
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = fmt.Sprintf("%s_p%d.jpg", strings.TrimSuffix(src, filepath.Ext(src)), page)
	}

	r, err := preview.RenderToFile(src, out, preview.Options{Page: page, DPI: dpi, Quality: quality, Gray: gray})
	if err != nil {
		return err
	}
	fmt.Printf("%s  page %d of %d  %dx%d\n", out, page, r.Pages, r.Width, r.Height)
	return nil
}
