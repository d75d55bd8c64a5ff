package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/local/pictopdf/internal/config"
	"github.com/local/pictopdf/internal/split"
)

var splitCmd = &cobra.Command{
	Use:   "split <document>",
	Short: "Split a document into parts under the size cap",
	Long: `Split cuts an existing PDF into contiguous page ranges, each written next
to the source as <name>_part<N>.pdf. A single page larger than the cap is
kept as its own part. Documents already within the cap are left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runSplit,
}

func init() {
	splitCmd.Flags().String("cap", "", "size cap per part, e.g. 12MiB")
	splitCmd.Flags().Bool("dry-run", false, "print the planned parts without writing them")

	rootCmd.AddCommand(splitCmd)
}

func runSplit(cmd *cobra.Command, args []string) error {
	limit, err := capFlag(cmd)
	if err != nil {
		return err
	}
	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		return planSplit(cmd, args[0], limit)
	}
	runner, cleanup, err := newRunner(cmd.Context(), logProgress)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := runner.Split(cmd.Context(), args[0], limit)
	if err != nil {
		return err
	}
	if len(res.Parts) == 0 {
		fmt.Printf("%s is %s, within the cap; nothing to split\n", res.Source, config.FormatByteSize(res.Size))
		return nil
	}
	for _, p := range res.Parts {
		fmt.Printf("%s  pages %d-%d  %s\n", p.Path, p.Start, p.End, config.FormatByteSize(p.Size))
	}
	return nil
}

// planSplit prints the parts a split of path would produce, with estimated
// sizes.
func planSplit(cmd *cobra.Command, path string, limit int64) error {
	if limit <= 0 {
		limit = cfg.Pipeline.Cap
	}
	parts, err := split.New(split.Options{}).PlanFile(cmd.Context(), path, limit)
	if err != nil {
		return err
	}
	for _, p := range parts {
		fmt.Printf("%s  pages %d-%d  ~%s\n", p.Path, p.Start, p.End, config.FormatByteSize(p.Size))
	}
	return nil
}
