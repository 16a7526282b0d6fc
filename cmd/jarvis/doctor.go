package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jarvis-homelab/jarvis/internal/config"
	"github.com/jarvis-homelab/jarvis/internal/security"
)

func buildDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run the startup security posture audit and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("doctor: %w", err)
			}
			report := security.Run(cfg)
			printAuditReport(cmd.OutOrStdout(), report)
			if report.HasCritical() {
				return fmt.Errorf("doctor: %d critical finding(s)", report.Summary.Critical)
			}
			return nil
		},
	}
}

func printAuditReport(out io.Writer, report *security.Report) {
	fmt.Fprintf(out, "security audit: %d critical, %d warn, %d info\n",
		report.Summary.Critical, report.Summary.Warn, report.Summary.Info)
	for _, f := range report.Findings {
		fmt.Fprintf(out, "  [%s] %s: %s\n", f.Severity, f.CheckID, f.Title)
	}
}
