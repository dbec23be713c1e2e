// preplinectl is the offline companion tool: it classifies local files and
// validates pipeline templates without touching the API or the database.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"prepline/internal/classify"
	"prepline/internal/pipeline"
	"prepline/internal/step"
)

func main() {
	root := &cobra.Command{
		Use:           "preplinectl",
		Short:         "Inspect datasets and pipeline templates locally",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newClassifyCmd(), newValidateCmd(), newStepsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newClassifyCmd() *cobra.Command {
	var sampleSize int
	cmd := &cobra.Command{
		Use:   "classify <file>",
		Short: "Detect the modality and suggested task of a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			sample := make([]byte, sampleSize)
			n, err := io.ReadFull(f, sample)
			if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
				return err
			}
			result := classify.Detect(args[0], sample[:n])

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "modality:       %s\n", result.Modality)
			fmt.Fprintf(out, "content_type:   %s\n", result.ContentType)
			fmt.Fprintf(out, "confidence:     %.2f\n", result.Confidence)
			fmt.Fprintf(out, "suggested_task: %s\n", result.SuggestedTask)
			if result.Uncertain() {
				fmt.Fprintln(out, "note: classification is uncertain, confirm the modality before building a pipeline")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&sampleSize, "sample-bytes", classify.DefaultSampleSize, "how much of the file to read for detection")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <template.yaml>",
		Short: "Validate a pipeline template against the builtin step catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			registry := step.NewRegistry()
			if err := step.RegisterBuiltins(registry); err != nil {
				return err
			}
			p, err := pipeline.NewBuilder(registry).LoadTemplate(f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "template %q is valid: modality %s, task %s, %d step(s)\n",
				p.Name, p.Modality, p.TaskType, len(p.Steps))
			for _, spec := range p.Steps {
				fmt.Fprintf(out, "  %d. %s (v%d)\n", spec.Position, spec.Kind, spec.Version)
			}
			return nil
		},
	}
}

func newStepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the builtin step catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := step.NewRegistry()
			if err := step.RegisterBuiltins(registry); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, f := range registry.List() {
				fmt.Fprintf(out, "%-16s %-8s v%d  %s\n", f.Kind, f.Modality, f.Version, f.Summary)
			}
			return nil
		},
	}
}
