package main

import (
	"github.com/spf13/cobra"

	"github.com/mrsinham/dicomhang/cmd/dicomhang/navigator"
)

func newNavigateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "navigate",
		Short: "Step through protocol stages and layouts interactively",
		Long: `Open a study with a protocol and navigate it from the keyboard:
n/p move between stages, t toggles the toggle protocol, 1-4 change the grid
layout, r resets the stage to its protocol layout and q quits.`,
		Args: cobra.NoArgs,
		RunE: runNavigate,
	}
	addSessionFlags(cmd)
	cmd.Flags().String("toggle", "", "protocol flipped by the t key (default from the session file)")
	return cmd
}

func runNavigate(cmd *cobra.Command, _ []string) error {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	inbox := &navigator.Inbox{}
	ctrl := ws.controller(inbox)
	if err := ws.start(ctrl, nil); err != nil {
		return err
	}

	toggle := ws.cfg.ToggleProtocol
	if cmd.Flags().Changed("toggle") {
		toggle, _ = cmd.Flags().GetString("toggle")
	}
	return navigator.Run(navigator.New(ctrl, ws.grid, inbox, navigator.Options{
		ToggleProtocol: toggle,
		Label:          ws.label,
	}))
}
