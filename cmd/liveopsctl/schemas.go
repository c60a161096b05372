package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

const apiBase = "/api/v1"

var schemasCmd = &cobra.Command{
	Use:   "schemas",
	Short: "Manage schema revisions",
}

var (
	schemaFile  string
	schemaGame  string
	schemaForce bool
)

var schemasCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a schema revision from a YAML or JSON file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := loadBodyFile(schemaFile)
		if err != nil {
			return err
		}

		var result map[string]any
		if err := newClient().postJSON(apiBase+"/schemas", body, &result); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return printOutput(result)
	},
}

var schemasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schema revisions for a game",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := apiBase + "/schemas"
		if schemaGame != "" {
			path += "?gameId=" + url.QueryEscape(schemaGame)
		}

		var result struct {
			Schemas []struct {
				ID        string `json:"id"`
				GameID    string `json:"gameId"`
				Name      string `json:"name"`
				CreatedBy string `json:"createdBy"`
				CreatedAt string `json:"createdAt"`
			} `json:"schemas"`
		}
		if err := newClient().getJSON(path, &result); err != nil {
			return fmt.Errorf("failed to list schemas: %w", err)
		}

		if !tableOutput() {
			return printOutput(result)
		}

		tbl := newTable("ID", "Game", "Name", "Created By", "Created At")
		for _, s := range result.Schemas {
			tbl.row(s.ID, s.GameID, s.Name, s.CreatedBy, s.CreatedAt)
		}
		tbl.flush()
		return nil
	},
}

var schemasGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get a schema revision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newClient().getRaw(apiBase + "/schemas/" + args[0])
		if err != nil {
			return fmt.Errorf("failed to get schema: %w", err)
		}
		return printOutput(result)
	},
}

var schemasReplaceCmd = &cobra.Command{
	Use:   "replace <id>",
	Short: "Overwrite a schema revision in place",
	Long: `Overwrite a schema revision with new content from a file. Fails if
channels are bound to the revision unless --force is given, which
destroys the bound channels first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := loadBodyFile(schemaFile)
		if err != nil {
			return err
		}

		path := apiBase + "/schemas/" + args[0]
		if schemaForce {
			path += "?force=true"
		}
		var result map[string]any
		if err := newClient().putJSON(path, body, &result); err != nil {
			return fmt.Errorf("failed to replace schema: %w", err)
		}
		return printOutput(result)
	},
}

var schemasDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a schema revision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := apiBase + "/schemas/" + args[0]
		query := url.Values{}
		if schemaForce {
			query.Set("force", "true")
		}
		if schemaGame != "" {
			query.Set("gameId", schemaGame)
		}
		if len(query) > 0 {
			path += "?" + query.Encode()
		}
		var result map[string]any
		if err := newClient().deleteJSON(path, &result); err != nil {
			return fmt.Errorf("failed to delete schema: %w", err)
		}
		return printOutput(result)
	},
}

func init() {
	schemasCreateCmd.Flags().StringVarP(&schemaFile, "file", "f", "", "Schema definition file (required)")
	_ = schemasCreateCmd.MarkFlagRequired("file")

	schemasListCmd.Flags().StringVar(&schemaGame, "game", "", "Filter by game ID")

	schemasReplaceCmd.Flags().StringVarP(&schemaFile, "file", "f", "", "Schema definition file (required)")
	schemasReplaceCmd.Flags().BoolVar(&schemaForce, "force", false, "Destroy bound channels if needed")
	_ = schemasReplaceCmd.MarkFlagRequired("file")

	schemasDeleteCmd.Flags().BoolVar(&schemaForce, "force", false, "Destroy bound channels if needed")
	schemasDeleteCmd.Flags().StringVar(&schemaGame, "game", "", "Refuse to delete a revision belonging to another game")

	schemasCmd.AddCommand(schemasCreateCmd)
	schemasCmd.AddCommand(schemasListCmd)
	schemasCmd.AddCommand(schemasGetCmd)
	schemasCmd.AddCommand(schemasReplaceCmd)
	schemasCmd.AddCommand(schemasDeleteCmd)

	rootCmd.AddCommand(schemasCmd)
}
