package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/local/pictopdf/internal/config"
	"github.com/local/pictopdf/internal/normalize"
	"github.com/local/pictopdf/internal/pipeline"
)

var convertCmd = &cobra.Command{
	Use:   "convert [images or directories...]",
	Short: "Pack pictures into size-capped PDF documents",
	Long: `Convert normalizes each picture with the chosen compression profile and
assembles them, in argument order, into numbered documents in the output
directory. Directories contribute their files in name order. Pictures that
cannot be decoded are skipped and listed at the end.`,
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringP("output", "o", "", "output directory (default from config)")
	convertCmd.Flags().StringP("profile", "p", "", "compression profile: none, medium, minimum")
	convertCmd.Flags().String("cap", "", "size cap per document, e.g. 12MiB")
	convertCmd.Flags().Bool("keep-images", false, "keep normalized images in the work directory")
	convertCmd.Flags().Bool("split", false, "split documents that still exceed the cap")
	convertCmd.Flags().String("report", "", "write a YAML run report to this path")

	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide one or more images or directories")
	}
	inputs, err := expandInputs(args)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no input files found")
	}

	if out, _ := cmd.Flags().GetString("output"); out != "" {
		setOutputDir(out)
	}
	profileName, _ := cmd.Flags().GetString("profile")
	if profileName == "" {
		profileName = cfg.Pipeline.Profile
	}
	profile, err := normalize.ParseProfile(profileName)
	if err != nil {
		return err
	}
	limit, err := capFlag(cmd)
	if err != nil {
		return err
	}
	keep, _ := cmd.Flags().GetBool("keep-images")
	doSplit, _ := cmd.Flags().GetBool("split")
	reportPath, _ := cmd.Flags().GetString("report")

	runner, cleanup, err := newRunner(cmd.Context(), logProgress)
	if err != nil {
		return err
	}
	defer cleanup()

	res, runErr := runner.Convert(cmd.Context(), inputs, pipeline.ConvertOptions{
		Profile:    profile,
		Cap:        limit,
		KeepImages: keep,
		Split:      doSplit,
	})

	if reportPath != "" && res != nil {
		if err := pipeline.NewReport(res, runErr).WriteFile(reportPath); err != nil {
			fmt.Fprintf(os.Stderr, "report: %v\n", err)
		}
	}
	if res != nil {
		printConvert(res)
	}
	return runErr
}

func printConvert(res *pipeline.ConvertResult) {
	for _, d := range res.Documents {
		fmt.Printf("%s  %d pages  %s\n", d.Path, d.Pages, config.FormatByteSize(d.Size))
		for _, p := range res.Parts[d.Path] {
			fmt.Printf("  %s  pages %d-%d  %s\n", p.Path, p.Start, p.End, config.FormatByteSize(p.Size))
		}
	}
	for _, f := range res.Failures {
		fmt.Fprintf(os.Stderr, "skipped #%d %s: %v\n", f.Index, f.Source, f.Err)
	}
}

// expandInputs replaces each directory argument with its regular files in
// name order. Hidden files are ignored.
func expandInputs(args []string) ([]string, error) {
	var out []string
	for _, a := range args {
		fi, err := os.Stat(a)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			out = append(out, a)
			continue
		}
		entries, err := os.ReadDir(a)
		if err != nil {
			return nil, err
		}
		var names []string
		for _, e := range entries {
			if e.IsDir() || e.Name()[0] == '.' {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, n := range names {
			out = append(out, filepath.Join(a, n))
		}
	}
	return out, nil
}
