package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	deployGame    string
	deployEnvName string
	deployFrom    string
	deployTo      string
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Promote a channel's bundle to the next tool environment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{
			"gameId":              deployGame,
			"envName":             deployEnvName,
			"fromToolEnvironment": deployFrom,
			"toToolEnvironment":   deployTo,
		}

		var result map[string]any
		if err := newClient().postJSON(apiBase+"/deploy", body, &result); err != nil {
			return fmt.Errorf("deploy failed: %w", err)
		}
		return printOutput(result)
	},
}

var (
	rollbackGame    string
	rollbackEnvName string
	rollbackToolEnv string
	rollbackRelease string
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Repoint a channel at one of its earlier releases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{
			"gameId":          rollbackGame,
			"envName":         rollbackEnvName,
			"toolEnvironment": rollbackToolEnv,
			"toReleaseId":     rollbackRelease,
		}

		var result map[string]any
		if err := newClient().postJSON(apiBase+"/rollback", body, &result); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		return printOutput(result)
	},
}

var releasesCmd = &cobra.Command{
	Use:   "releases",
	Short: "Inspect channel releases",
}

var releasesListCmd = &cobra.Command{
	Use:   "list <channel>",
	Short: "List the releases of a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("%s/channels/%s/releases", apiBase, args[0])

		var result struct {
			Releases []struct {
				ID           string `json:"id"`
				Version      int    `json:"version"`
				CompiledHash string `json:"compiledHash"`
				CreatedBy    string `json:"createdBy"`
				CreatedAt    string `json:"createdAt"`
				PublishedAt  string `json:"publishedAt"`
				PublishError string `json:"publishError"`
			} `json:"releases"`
		}
		if err := newClient().getJSON(path, &result); err != nil {
			return fmt.Errorf("failed to list releases: %w", err)
		}

		if !tableOutput() {
			return printOutput(result)
		}

		tbl := newTable("ID", "Version", "Hash", "Created By", "Published", "Publish Error")
		for _, rel := range result.Releases {
			tbl.row(rel.ID, rel.Version, clip(rel.CompiledHash, 12),
				rel.CreatedBy, rel.PublishedAt, clip(rel.PublishError, 40))
		}
		tbl.flush()
		return nil
	},
}

var releasesPublishCmd = &cobra.Command{
	Use:   "publish <releaseId>",
	Short: "Retry publishing a channel's active release",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result map[string]any
		if err := newClient().postJSON(apiBase+"/releases/"+args[0]+"/publish", nil, &result); err != nil {
			return fmt.Errorf("publish failed: %w", err)
		}
		return printOutput(result)
	},
}

var deploymentsCmd = &cobra.Command{
	Use:   "deployments <channel>",
	Short: "Show the deployment history of a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("%s/channels/%s/deployments", apiBase, args[0])

		var result struct {
			Deployments []struct {
				ID          string `json:"id"`
				Action      string `json:"action"`
				FromVersion int    `json:"fromVersion"`
				ToVersion   int    `json:"toVersion"`
				CreatedBy   string `json:"createdBy"`
				CreatedAt   string `json:"createdAt"`
			} `json:"deployments"`
		}
		if err := newClient().getJSON(path, &result); err != nil {
			return fmt.Errorf("failed to list deployments: %w", err)
		}

		if !tableOutput() {
			return printOutput(result)
		}

		tbl := newTable("ID", "Action", "From", "To", "Created By", "Created At")
		for _, d := range result.Deployments {
			tbl.row(d.ID, d.Action, d.FromVersion, d.ToVersion, d.CreatedBy, d.CreatedAt)
		}
		tbl.flush()
		return nil
	},
}

func init() {
	deployCmd.Flags().StringVar(&deployGame, "game", "", "Game ID (required)")
	deployCmd.Flags().StringVar(&deployEnvName, "env-name", "", "Environment name, e.g. live (required)")
	deployCmd.Flags().StringVar(&deployFrom, "from", "", "Source tool environment (required)")
	deployCmd.Flags().StringVar(&deployTo, "to", "", "Target tool environment (required)")
	_ = deployCmd.MarkFlagRequired("game")
	_ = deployCmd.MarkFlagRequired("env-name")
	_ = deployCmd.MarkFlagRequired("from")
	_ = deployCmd.MarkFlagRequired("to")

	rollbackCmd.Flags().StringVar(&rollbackGame, "game", "", "Game ID (required)")
	rollbackCmd.Flags().StringVar(&rollbackEnvName, "env-name", "", "Environment name (required)")
	rollbackCmd.Flags().StringVar(&rollbackToolEnv, "tool-env", "", "Tool environment, staging or production (required)")
	rollbackCmd.Flags().StringVar(&rollbackRelease, "release", "", "Release ID to roll back to (required)")
	_ = rollbackCmd.MarkFlagRequired("game")
	_ = rollbackCmd.MarkFlagRequired("env-name")
	_ = rollbackCmd.MarkFlagRequired("tool-env")
	_ = rollbackCmd.MarkFlagRequired("release")

	releasesCmd.AddCommand(releasesListCmd)
	releasesCmd.AddCommand(releasesPublishCmd)

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(releasesCmd)
	rootCmd.AddCommand(deploymentsCmd)
}
