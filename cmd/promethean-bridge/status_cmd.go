package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/codefionn/promethean-bridge/internal/pidfile"
	"github.com/codefionn/promethean-bridge/internal/socketutil"
	"github.com/codefionn/promethean-bridge/internal/supervisor"
)

var (
	statusConnectedStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("42"))
	statusDisconnectedStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("196"))
	statusDetailStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				PaddingLeft(2)
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a command server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		address := cfg.Server.Address()
		status := supervisor.StatusDisconnected
		if socketutil.DetectServer(address) {
			status = supervisor.StatusConnected
		}

		fmt.Fprintln(cmd.OutOrStdout(), renderStatus(status))
		fmt.Fprintln(cmd.OutOrStdout(), statusDetailStyle.Render(socketutil.GetDetectionInfo(address, pidfile.New(cfg.PIDPath))))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func renderStatus(status supervisor.Status) string {
	if status == supervisor.StatusConnected {
		return statusConnectedStyle.Render("● " + status.String())
	}
	return statusDisconnectedStyle.Render("○ " + status.String())
}
