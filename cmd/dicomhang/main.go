// Command dicomhang hangs DICOM studies with hanging protocols: it plans
// viewport grids, lets a user step through stages interactively, and writes
// synthetic studies to try protocols against.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags
var version = "dev"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, errorStyle.Render("Error: "+err.Error()))
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dicomhang",
		Short: "Hanging protocol matching and viewport layout for DICOM studies",
		Long: titleStyle.Render("dicomhang") + `

Matches hanging protocols against a DICOM study and lays its display sets
out in a viewport grid:
  plan       print the grid a protocol produces
  navigate   step through stages and layouts interactively
  synth      write a synthetic study
  protocols  list and lint protocol files

` + dimStyle.Render("Use 'dicomhang [command] --help' for more information."),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "session file (TOML)")
	root.PersistentFlags().String("log-level", "", "log level: trace, debug, info, warn, error")

	root.AddCommand(newPlanCmd(), newNavigateCmd(), newSynthCmd(), newProtocolsCmd())
	return root
}
