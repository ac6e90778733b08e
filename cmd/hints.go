package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/tieubaoca/course-assistant/service"
)

var warnStyle = color.New(color.FgYellow).SprintFunc()

// warnIfEmptyIndex tells the user to rebuild before asking questions against an
// empty collection. An index that cannot be opened is left for the agent to report.
func warnIfEmptyIndex(ctx context.Context, w io.Writer, app *service.App) bool {
	idx, err := app.Index(ctx)
	if err != nil {
		return false
	}
	n, err := idx.Count(ctx)
	if err != nil || n > 0 {
		return false
	}
	fmt.Fprintln(w, warnStyle("The knowledge base is empty. Run `course-assistant rebuild` to index the course material first."))
	return true
}
