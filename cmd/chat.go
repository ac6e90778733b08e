/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat with the course assistant",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		if warnIfEmptyIndex(cmd.Context(), cmd.ErrOrStderr(), app) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Starting the chat anyway; answers will not cite course material.")
		}

		title := fmt.Sprintf("Course assistant · %s/%s", cfg.LLM.Provider, cfg.LLM.Model)
		p := tea.NewProgram(newChatModel(cmd.Context(), title, app.Ask), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		_, err = p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
