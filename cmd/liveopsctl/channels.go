package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Manage configuration channels",
}

var (
	channelGame    string
	channelToolEnv string
	channelEnvName string
	channelSchema  string
)

var channelsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a channel bound to a schema revision",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{
			"gameId":           channelGame,
			"toolEnvironment":  channelToolEnv,
			"envName":          channelEnvName,
			"schemaRevisionId": channelSchema,
		}

		var result map[string]any
		if err := newClient().postJSON(apiBase+"/channels", body, &result); err != nil {
			return fmt.Errorf("failed to create channel: %w", err)
		}
		return printOutput(result)
	},
}

var channelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List channels",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		query := url.Values{}
		if channelGame != "" {
			query.Set("gameId", channelGame)
		}
		if channelToolEnv != "" {
			query.Set("toolEnvironment", channelToolEnv)
		}
		path := apiBase + "/channels"
		if len(query) > 0 {
			path += "?" + query.Encode()
		}

		var result struct {
			Channels []struct {
				ID              string `json:"id"`
				GameID          string `json:"gameId"`
				ToolEnvironment string `json:"toolEnvironment"`
				EnvName         string `json:"envName"`
				State           struct {
					CurrentVersion int `json:"currentVersion"`
				} `json:"state"`
			} `json:"channels"`
		}
		if err := newClient().getJSON(path, &result); err != nil {
			return fmt.Errorf("failed to list channels: %w", err)
		}

		if !tableOutput() {
			return printOutput(result)
		}

		tbl := newTable("ID", "Game", "Tool Env", "Env Name", "Version")
		for _, c := range result.Channels {
			tbl.row(c.ID, c.GameID, c.ToolEnvironment, c.EnvName, c.State.CurrentVersion)
		}
		tbl.flush()
		return nil
	},
}

var channelsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get a channel with its state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newClient().getRaw(apiBase + "/channels/" + args[0])
		if err != nil {
			return fmt.Errorf("failed to get channel: %w", err)
		}
		return printOutput(result)
	},
}

var channelsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a development channel and its content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result map[string]any
		if err := newClient().deleteJSON(apiBase+"/channels/"+args[0], &result); err != nil {
			return fmt.Errorf("failed to delete channel: %w", err)
		}
		return printOutput(result)
	},
}

var channelsResetCmd = &cobra.Command{
	Use:   "reset <id>",
	Short: "Clear a development channel, optionally rebinding its schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{}
		if channelSchema != "" {
			body["schemaRevisionId"] = channelSchema
		}

		var result map[string]any
		if err := newClient().postJSON(apiBase+"/channels/"+args[0]+"/reset", body, &result); err != nil {
			return fmt.Errorf("failed to reset channel: %w", err)
		}
		return printOutput(result)
	},
}

var channelsPullCmd = &cobra.Command{
	Use:   "pull-staging <id>",
	Short: "Replace a development channel's drafts with the staging release",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result map[string]any
		if err := newClient().postJSON(apiBase+"/channels/"+args[0]+"/pull-staging", nil, &result); err != nil {
			return fmt.Errorf("failed to pull from staging: %w", err)
		}
		return printOutput(result)
	},
}

func init() {
	channelsCreateCmd.Flags().StringVar(&channelGame, "game", "", "Game ID (required)")
	channelsCreateCmd.Flags().StringVar(&channelToolEnv, "tool-env", "development", "Tool environment (development, staging, production)")
	channelsCreateCmd.Flags().StringVar(&channelEnvName, "env-name", "", "Environment name, e.g. live (required)")
	channelsCreateCmd.Flags().StringVar(&channelSchema, "schema", "", "Schema revision ID (required)")
	_ = channelsCreateCmd.MarkFlagRequired("game")
	_ = channelsCreateCmd.MarkFlagRequired("env-name")
	_ = channelsCreateCmd.MarkFlagRequired("schema")

	channelsListCmd.Flags().StringVar(&channelGame, "game", "", "Filter by game ID")
	channelsListCmd.Flags().StringVar(&channelToolEnv, "tool-env", "", "Filter by tool environment")

	channelsResetCmd.Flags().StringVar(&channelSchema, "schema", "", "Rebind to this schema revision")

	channelsCmd.AddCommand(channelsCreateCmd)
	channelsCmd.AddCommand(channelsListCmd)
	channelsCmd.AddCommand(channelsGetCmd)
	channelsCmd.AddCommand(channelsDeleteCmd)
	channelsCmd.AddCommand(channelsResetCmd)
	channelsCmd.AddCommand(channelsPullCmd)

	rootCmd.AddCommand(channelsCmd)
}
