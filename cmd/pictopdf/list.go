package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/spf13/cobra"

	"github.com/local/pictopdf/internal/catalog"
	"github.com/local/pictopdf/internal/config"
	"github.com/local/pictopdf/internal/filetype"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List produced documents and parts",
	Long: `List prints the catalog of produced documents and split parts. Without a
configured catalog it scans the output directory for PDF files instead.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringP("output", "o", "", "output directory to scan (default from config)")
	listCmd.Flags().String("kind", "", "only show this kind: document or part")
	listCmd.Flags().Int("limit", 0, "maximum number of entries")
	listCmd.Flags().Bool("prune", false, "drop catalog entries whose file is gone")

	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	if out, _ := cmd.Flags().GetString("output"); out != "" {
		setOutputDir(out)
	}
	kind, _ := cmd.Flags().GetString("kind")
	limit, _ := cmd.Flags().GetInt("limit")
	prune, _ := cmd.Flags().GetBool("prune")

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	if cfg.Catalog.Path == "" {
		return scanOutput(tw, cfg.Pipeline.OutputDir, limit)
	}

	store, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	if prune {
		n, err := store.Prune(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "pruned %d entries\n", n)
	}

	entries, err := store.List(cmd.Context(), catalog.Filter{Kind: catalog.Kind(kind), Limit: limit})
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "PATH\tKIND\tPAGES\tSIZE\tCREATED\tREMOTE")
	for _, e := range entries {
		pages := fmt.Sprint(e.Pages)
		if e.Kind == catalog.KindPart {
			pages = fmt.Sprintf("%d (%d-%d)", e.Pages, e.StartPage, e.EndPage)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Path, e.Kind, pages, config.FormatByteSize(e.Size),
			e.CreatedAt.Local().Format("2006-01-02 15:04"), e.RemoteURL)
	}
	return nil
}

// foundDocument is a PDF discovered by scanning a directory.
type foundDocument struct {
	path string
	info os.FileInfo
}

// findDocuments returns the PDF files in dir, newest first. Files are
// recognized by content, so renamed documents are still listed.
func findDocuments(dir string, limit int) ([]foundDocument, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	det := filetype.New()
	var docs []foundDocument
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		ft, err := det.DetectFile(path)
		if err != nil || !ft.IsPDF {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		docs = append(docs, foundDocument{path: path, info: info})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].info.ModTime().After(docs[j].info.ModTime()) })
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// scanOutput prints the PDF files found in dir.
func scanOutput(tw *tabwriter.Writer, dir string, limit int) error {
	docs, err := findDocuments(dir, limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "PATH\tPAGES\tSIZE\tMODIFIED")
	for _, d := range docs {
		pages := "?"
		if n, err := api.PageCountFile(d.path); err == nil {
			pages = fmt.Sprint(n)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.path, pages, config.FormatByteSize(d.info.Size()),
			d.info.ModTime().Format("2006-01-02 15:04"))
	}
	return nil
}
