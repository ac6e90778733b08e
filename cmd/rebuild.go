/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tieubaoca/course-assistant/types"
)

var (
	stageStyle   = color.New(color.FgCyan, color.Bold).SprintFunc()
	successStyle = color.New(color.FgGreen).SprintFunc()
	failureStyle = color.New(color.FgRed).SprintFunc()
	mutedStyle   = color.New(color.Faint).SprintFunc()
)

const progressInterval = 500 * time.Millisecond

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the vector index from the course material",
	Long: `Clears the collection and re-indexes every supported file under data_dir,
printing progress until the rebuild finishes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		rebuilder := app.Rebuilder()
		out := cmd.OutOrStdout()

		done := make(chan error, 1)
		go func() { done <- rebuilder.RunSync(cmd.Context()) }()

		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		var last progressKey
		for {
			select {
			case err := <-done:
				st := rebuilder.Snapshot()
				printProgress(out, st, &last)
				if err != nil {
					fmt.Fprintln(out, failureStyle("rebuild failed: "+err.Error()))
					return err
				}
				fmt.Fprintln(out, successStyle(fmt.Sprintf("rebuild complete in %s", elapsed(st))))
				return nil
			case <-ticker.C:
				printProgress(out, rebuilder.Snapshot(), &last)
			}
		}
	},
}

type progressKey struct {
	stage   string
	current int
	total   int
}

// printProgress writes one line whenever the stage or counter moves.
func printProgress(w io.Writer, st types.RebuildStatus, last *progressKey) {
	key := progressKey{st.Stage, st.Current, st.Total}
	if key == *last || !st.Running {
		return
	}
	*last = key
	if st.Total > 0 {
		fmt.Fprintf(w, "%s %d/%d %s\n", stageStyle(st.Stage), st.Current, st.Total, mutedStyle(fmt.Sprintf("(%d%%)", st.Percent)))
		return
	}
	fmt.Fprintln(w, stageStyle(st.Stage))
}

func elapsed(st types.RebuildStatus) time.Duration {
	if st.LastStartedAt == nil || st.LastFinishedAt == nil {
		return 0
	}
	d := time.Duration((*st.LastFinishedAt - *st.LastStartedAt) * float64(time.Second))
	return d.Round(time.Millisecond)
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}
