package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mrsinham/dicomhang/internal/dicom"
	"github.com/mrsinham/dicomhang/internal/protocol"
)

func newProtocolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "protocols",
		Short: "List and lint hanging protocols",
		Long: `List the protocols of the session, including the built-in default
protocol, and check their matching rules against the DICOM dictionary.
Exits with an error when a protocol is invalid.`,
		Args: cobra.NoArgs,
		RunE: runProtocols,
	}
	cmd.Flags().StringSlice("protocols", nil, "protocol files or directories")
	return cmd
}

func runProtocols(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	loaded, err := protocol.LoadPaths(cfg.Protocols)
	if err != nil {
		return err
	}
	registry := protocol.NewRegistry(loaded...)

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTAGES\tPRIORS")
	var findings []dicom.Finding
	for _, id := range registry.IDs() {
		p, err := registry.Get(id)
		if err != nil {
			return err
		}
		stages := make([]string, len(p.Stages))
		for i, s := range p.Stages {
			stages[i] = s.Key()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", p.ID, p.Name, strings.Join(stages, ","), p.NumberOfPriorsReferenced)
		findings = append(findings, dicom.LintProtocol(p)...)
	}
	_ = tw.Flush()

	if len(findings) == 0 {
		fmt.Fprintln(out, successStyle.Render("✓ No problems found"))
		return nil
	}

	fmt.Fprintln(out)
	errs := 0
	for _, f := range findings {
		switch f.Severity {
		case dicom.SeverityError:
			errs++
			fmt.Fprintln(out, errorStyle.Render(f.String()))
		default:
			fmt.Fprintln(out, warnStyle.Render(f.String()))
		}
	}
	if errs > 0 {
		return fmt.Errorf("%d invalid protocol(s)", errs)
	}
	return nil
}
