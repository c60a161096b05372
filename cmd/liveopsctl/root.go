package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	outputFmt string
	principal string
)

var rootCmd = &cobra.Command{
	Use:   "liveopsctl",
	Short: "CLI for the liveops configuration server",
	Long: `liveopsctl manages game configuration bundles end to end: schema
revisions, channel drafts, frozen section versions, and the
development -> staging -> production promotion pipeline.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Liveops server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&principal, "principal", "", "Acting principal (default: from LIVEOPS_PRINCIPAL env)")
}

// resolvedPrincipal returns the effective actor.
// Priority: --principal flag > LIVEOPS_PRINCIPAL env var.
func resolvedPrincipal() string {
	if principal != "" {
		return principal
	}
	return os.Getenv("LIVEOPS_PRINCIPAL")
}
