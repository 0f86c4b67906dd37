package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/ethpandaops/posintel/pkg/pipeline"
	"github.com/spf13/cobra"
)

// stagesCmd lists the pipeline stages and their dependencies
//
//nolint:gochecknoglobals // Cobra commands are typically global
var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List the pipeline stages in run order",
	Long:  `List every pipeline stage in run order with the stages whose output it reads and the stages rerun after it.`,
	RunE:  runStagesList,
}

func init() {
	rootCmd.AddCommand(stagesCmd)
}

func runStagesList(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	graph, err := pipeline.NewGraph()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tDEPENDS ON\tDOWNSTREAM")

	for _, name := range graph.Stages() {
		deps, err := graph.DependsOn(name)
		if err != nil {
			return err
		}

		downstream, err := graph.Downstream(name)
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", name, joinOrDash(deps), joinOrDash(downstream[1:]))
	}

	return w.Flush()
}

func joinOrDash(names []string) string {
	if len(names) == 0 {
		return "-"
	}

	return strings.Join(names, ",")
}
