/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tieubaoca/course-assistant/service"
	"github.com/tieubaoca/course-assistant/types"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question from the indexed course material",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		question := strings.Join(args, " ")
		out := cmd.OutOrStdout()
		warnIfEmptyIndex(cmd.Context(), cmd.ErrOrStderr(), app)

		withSources, _ := cmd.Flags().GetBool("sources")
		if !withSources {
			fmt.Fprintln(out, app.Ask(cmd.Context(), question, nil))
			return nil
		}

		resp, err := app.Chat(cmd.Context(), types.ChatRequest{Message: question})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, resp.Answer)
		if len(resp.Sources) > 0 {
			fmt.Fprintln(out)
			fmt.Fprintln(out, labelStyle("Sources"))
		}
		for _, s := range resp.Sources {
			fmt.Fprintln(out, "  "+service.FormatSource(s.Filename, s.PageNumber))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().Bool("sources", false, "list the retrieved sources after the answer")
}
