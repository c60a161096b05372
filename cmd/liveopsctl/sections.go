package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var draftsCmd = &cobra.Command{
	Use:   "drafts",
	Short: "Manage editable section drafts",
}

var (
	draftFile   string
	freezeLabel string
)

var draftsGetCmd = &cobra.Command{
	Use:   "get <channel> <template>",
	Short: "Get the draft rows of a section",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newClient().getRaw(fmt.Sprintf("%s/channels/%s/drafts/%s", apiBase, args[0], args[1]))
		if err != nil {
			return fmt.Errorf("failed to get draft: %w", err)
		}
		return printOutput(result)
	},
}

var draftsSetCmd = &cobra.Command{
	Use:   "set <channel> <template>",
	Short: "Replace a section draft with rows from a file",
	Long: `Replace a section draft with validated rows. The file must contain a
top-level "rows" list. Rows that violate the schema are rejected and
the previous draft is kept.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := loadBodyFile(draftFile)
		if err != nil {
			return err
		}
		if _, ok := body["rows"]; !ok {
			return fmt.Errorf("%s: missing top-level \"rows\" list", draftFile)
		}

		var result map[string]any
		path := fmt.Sprintf("%s/channels/%s/drafts/%s", apiBase, args[0], args[1])
		if err := newClient().putJSON(path, body, &result); err != nil {
			return fmt.Errorf("failed to set draft: %w", err)
		}
		return printOutput(result)
	},
}

var draftsFreezeCmd = &cobra.Command{
	Use:   "freeze <channel> <template>",
	Short: "Freeze the current draft as an immutable section version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{}
		if freezeLabel != "" {
			body["label"] = freezeLabel
		}

		var result map[string]any
		path := fmt.Sprintf("%s/channels/%s/drafts/%s/freeze", apiBase, args[0], args[1])
		if err := newClient().postJSON(path, body, &result); err != nil {
			return fmt.Errorf("failed to freeze draft: %w", err)
		}
		return printOutput(result)
	},
}

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Manage frozen section versions",
}

var versionsTemplate string

var versionsListCmd = &cobra.Command{
	Use:   "list <channel>",
	Short: "List frozen section versions of a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("%s/channels/%s/versions", apiBase, args[0])
		if versionsTemplate != "" {
			path += "?template=" + url.QueryEscape(versionsTemplate)
		}

		var result struct {
			Versions []struct {
				ID            string `json:"id"`
				TemplateName  string `json:"templateName"`
				VersionNumber int    `json:"versionNumber"`
				Label         string `json:"label"`
				CreatedBy     string `json:"createdBy"`
				CreatedAt     string `json:"createdAt"`
			} `json:"versions"`
		}
		if err := newClient().getJSON(path, &result); err != nil {
			return fmt.Errorf("failed to list versions: %w", err)
		}

		if !tableOutput() {
			return printOutput(result)
		}

		tbl := newTable("ID", "Template", "Version", "Label", "Created By", "Created At")
		for _, v := range result.Versions {
			tbl.row(v.ID, v.TemplateName, v.VersionNumber, v.Label, v.CreatedBy, v.CreatedAt)
		}
		tbl.flush()
		return nil
	},
}

var versionsDeleteCmd = &cobra.Command{
	Use:   "delete <channel> <versionId>",
	Short: "Delete an unused frozen section version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result map[string]any
		path := fmt.Sprintf("%s/channels/%s/versions/%s", apiBase, args[0], args[1])
		if err := newClient().deleteJSON(path, &result); err != nil {
			return fmt.Errorf("failed to delete version: %w", err)
		}
		return printOutput(result)
	},
}

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Manage the bundle draft selection",
}

var bundleGetCmd = &cobra.Command{
	Use:   "get <channel>",
	Short: "Get the bundle draft selection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newClient().getRaw(fmt.Sprintf("%s/channels/%s/bundle-draft", apiBase, args[0]))
		if err != nil {
			return fmt.Errorf("failed to get bundle draft: %w", err)
		}
		return printOutput(result)
	},
}

var bundleSelections []string

var bundleSetCmd = &cobra.Command{
	Use:   "set <channel>",
	Short: "Replace the bundle draft selection",
	Long: `Replace the bundle draft selection with template=versionId pairs, e.g.

  liveopsctl bundle set <channel> --select Items=<versionId> --select Offers=<versionId>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		selection := make(map[string]string, len(bundleSelections))
		for _, pair := range bundleSelections {
			template, versionID, ok := splitPair(pair)
			if !ok {
				return fmt.Errorf("invalid --select value %q (expected template=versionId)", pair)
			}
			selection[template] = versionID
		}

		var result map[string]any
		path := fmt.Sprintf("%s/channels/%s/bundle-draft", apiBase, args[0])
		if err := newClient().putJSON(path, map[string]any{"selection": selection}, &result); err != nil {
			return fmt.Errorf("failed to set bundle draft: %w", err)
		}
		return printOutput(result)
	},
}

func splitPair(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], i > 0 && i < len(s)-1
		}
	}
	return "", "", false
}

func init() {
	draftsSetCmd.Flags().StringVarP(&draftFile, "file", "f", "", "Rows file (required)")
	_ = draftsSetCmd.MarkFlagRequired("file")

	draftsFreezeCmd.Flags().StringVar(&freezeLabel, "label", "", "Version label (default: v<number>)")

	draftsCmd.AddCommand(draftsGetCmd)
	draftsCmd.AddCommand(draftsSetCmd)
	draftsCmd.AddCommand(draftsFreezeCmd)

	versionsListCmd.Flags().StringVar(&versionsTemplate, "template", "", "Filter by template name")

	versionsCmd.AddCommand(versionsListCmd)
	versionsCmd.AddCommand(versionsDeleteCmd)

	bundleSetCmd.Flags().StringArrayVar(&bundleSelections, "select", nil, "template=versionId pair (repeatable, required)")
	_ = bundleSetCmd.MarkFlagRequired("select")

	bundleCmd.AddCommand(bundleGetCmd)
	bundleCmd.AddCommand(bundleSetCmd)

	rootCmd.AddCommand(draftsCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(bundleCmd)
}
