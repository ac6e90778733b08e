/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tieubaoca/course-assistant/types"
)

var labelStyle = color.New(color.Bold).SprintFunc()

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show corpus, index and model status",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		st := app.Status(cmd.Context())
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}
		printStatus(cmd.OutOrStdout(), st)
		return nil
	},
}

func printStatus(w io.Writer, st types.StatusResponse) {
	row := func(label, value string) {
		fmt.Fprintf(w, "%-18s %s\n", labelStyle(label), value)
	}

	row("data dir", fmt.Sprintf("%s %s", st.DataDir, existence(st.DataDirExists)))
	row("vector store", fmt.Sprintf("%s %s %s", st.VectorStore, st.VectorDBPath, existence(st.VectorDBExists)))
	switch {
	case st.CollectionCount != nil:
		row("collection", fmt.Sprintf("%s (%d entries)", st.Collection, *st.CollectionCount))
	case st.CollectionCountError != nil:
		row("collection", fmt.Sprintf("%s %s", st.Collection, failureStyle(*st.CollectionCountError)))
	}
	row("model", fmt.Sprintf("%s/%s", st.Provider, st.Model))
	row("embedding model", st.EmbeddingModel)
	row("api base", st.APIBase)
	row("defaults", fmt.Sprintf("top_k=%d chunk_size=%d chunk_overlap=%d",
		st.Defaults.TopK, st.Defaults.ChunkSize, st.Defaults.ChunkOverlap))

	rb := st.Rebuild
	switch {
	case rb.Running:
		row("rebuild", stageStyle(fmt.Sprintf("%s %d/%d", rb.Stage, rb.Current, rb.Total)))
	case rb.LastError != nil:
		row("rebuild", failureStyle("failed: "+*rb.LastError))
	case rb.LastFinishedAt != nil:
		finished := time.Unix(0, int64(*rb.LastFinishedAt*float64(time.Second)))
		row("rebuild", successStyle("finished "+finished.Format(time.DateTime)))
	default:
		row("rebuild", mutedStyle("never run in this process"))
	}
}

func existence(ok bool) string {
	if ok {
		return successStyle("(exists)")
	}
	return failureStyle("(missing)")
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("json", false, "print the status as JSON")
}
