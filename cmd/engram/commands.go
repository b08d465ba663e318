package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/engram/internal/config"
	"github.com/kalambet/engram/internal/ingest"
	"github.com/kalambet/engram/internal/storage"
)

type cliIndex struct {
	IndexID   string `json:"index_id"`
	IndexName string `json:"index_name"`
	Algorithm string `json:"algorithm"`
	CreatedAt string `json:"created_at"`
}

type cliHit struct {
	EmbeddingID string   `json:"embedding_id"`
	ID64        int64    `json:"id64"`
	Body        string   `json:"body"`
	Tags        []string `json:"tags"`
	Score       float32  `json:"score"`
	Rank        int      `json:"rank"`
	CreatedAt   string   `json:"created_at"`
}

func splitTags(tagsStr string) []string {
	if tagsStr == "" {
		return nil
	}
	tags := strings.Split(tagsStr, ",")
	for i := range tags {
		tags[i] = strings.TrimSpace(tags[i])
	}
	return tags
}

// --- index ---

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage semantic indexes",
}

var indexCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new semantic index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		algorithm, _ := cmd.Flags().GetString("algorithm")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/indexes", map[string]string{
			"name":      args[0],
			"algorithm": algorithm,
		})
		if err != nil {
			return err
		}

		var idx cliIndex
		if err := decodeJSON(resp, &idx); err != nil {
			return err
		}

		printSuccess("Created index %s (%s)", idx.IndexName, idx.IndexID)
		return nil
	},
}

var indexListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all semantic indexes, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/indexes")
		if err != nil {
			return err
		}

		var indexes []cliIndex
		if err := decodeJSON(resp, &indexes); err != nil {
			return err
		}

		if len(indexes) == 0 {
			fmt.Println("No indexes found.")
			return nil
		}
		for _, idx := range indexes {
			fmt.Printf("%s  %s  %s  %s\n",
				colorize(ansiCyan, idx.IndexID[:8]),
				colorize(ansiBold, idx.IndexName),
				idx.Algorithm,
				idx.CreatedAt,
			)
		}
		return nil
	},
}

func init() {
	indexCreateCmd.Flags().String("algorithm", "flat-ip", "advisory algorithm label")
	indexCmd.AddCommand(indexCreateCmd)
	indexCmd.AddCommand(indexListCmd)
}

// --- add ---

var addCmd = &cobra.Command{
	Use:   "add <thought>",
	Short: "Store a thought in an index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, _ := cmd.Flags().GetString("index")
		tagsStr, _ := cmd.Flags().GetString("tags")
		body := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"index": index, "body": body}
		if tags := splitTags(tagsStr); tags != nil {
			req["tags"] = tags
		}

		resp, err := client.post(cmd.Context(), "/thoughts", req)
		if err != nil {
			return err
		}

		var result struct {
			ID64   int64  `json:"id64"`
			Status string `json:"status"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Status == "pending" {
			printWarning("Stored thought %d; it will become searchable after the next repair sweep", result.ID64)
			return nil
		}
		printSuccess("Stored thought %d", result.ID64)
		return nil
	},
}

func init() {
	addCmd.Flags().String("index", "default", "target index name")
	addCmd.Flags().String("tags", "", "comma-separated tags")
}

// --- recall ---

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Semantically search an index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, _ := cmd.Flags().GetString("index")
		limit, _ := cmd.Flags().GetInt("limit")
		query := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/query", map[string]any{
			"index": index,
			"query": query,
			"k":     limit,
		})
		if err != nil {
			return err
		}

		var hits []cliHit
		if err := decodeJSON(resp, &hits); err != nil {
			return err
		}

		if len(hits) == 0 {
			fmt.Println("No results found.")
			return nil
		}
		for _, h := range hits {
			fmt.Printf("\n%s [score: %.3f]\n", colorize(ansiBold, fmt.Sprintf("#%d", h.Rank)), h.Score)
			if len(h.Tags) > 0 {
				fmt.Printf("  Tags: %s\n", strings.Join(h.Tags, ", "))
			}
			fmt.Printf("  %s\n", h.Body)
		}
		return nil
	},
}

func init() {
	recallCmd.Flags().String("index", "default", "index name to search")
	recallCmd.Flags().Int("limit", 5, "maximum number of results")
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from stored thoughts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, _ := cmd.Flags().GetString("index")
		question := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/ask", map[string]string{
			"index":    index,
			"question": question,
		})
		if err != nil {
			return err
		}

		var result struct {
			Answer  string   `json:"answer"`
			Sources []cliHit `json:"sources"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Answer)
		if len(result.Sources) > 0 {
			fmt.Printf("\n%s\n", colorize(ansiBold, "Sources:"))
			for _, h := range result.Sources {
				body := h.Body
				if len(body) > 120 {
					body = body[:120] + "..."
				}
				fmt.Printf("  [%.3f] %s\n", h.Score, body)
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().String("index", "default", "index name to recall from")
}

// --- archive ---

var archiveCmd = &cobra.Command{
	Use:   "archive <embedding-id>",
	Short: "Archive a thought so it no longer appears in results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/thoughts/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Archived thought %s", args[0])
		return nil
	},
}

// --- import ---

// apiAdder routes importer fragments through the server API. The index
// argument carries the index name rather than its id; the server resolves
// it per request.
type apiAdder struct {
	client *apiClient
}

func (a *apiAdder) AddThought(ctx context.Context, t storage.Thought, index string) (int64, error) {
	req := map[string]any{"index": index, "body": t.Body}
	if len(t.Tags) > 0 {
		req["tags"] = t.Tags
	}

	resp, err := a.client.post(ctx, "/thoughts", req)
	if err != nil {
		return 0, err
	}

	var result struct {
		ID64 int64 `json:"id64"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return 0, err
	}
	return result.ID64, nil
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a text, markdown, or PDF file as thoughts",
	Long: `Import a file as thoughts.

The file's text is split into paragraph-sized fragments and each fragment
is stored as one thought.

Examples:
  engram import ./notes.md --index notes --tags imported
  engram import ./paper.pdf --index research`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, _ := cmd.Flags().GetString("index")
		tagsStr, _ := cmd.Flags().GetString("tags")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		importer := ingest.NewImporter(&apiAdder{client: client}, 0)
		result, err := importer.ImportFile(cmd.Context(), args[0], index, splitTags(tagsStr))
		if err != nil {
			if result.Fragments > 0 {
				printWarning("Stored %d fragments before failing", result.Fragments)
			}
			return err
		}

		printSuccess("Imported %d fragments from %s", result.Fragments, args[0])
		return nil
	},
}

func init() {
	importCmd.Flags().String("index", "default", "target index name")
	importCmd.Flags().String("tags", "", "comma-separated tags for every fragment")
}

// --- repair ---

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Replay pending thoughts into the vector index",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/repair", nil)
		if err != nil {
			return err
		}

		var result map[string]int
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Repaired %d pending thoughts", result["repaired"])
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(ansiBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
