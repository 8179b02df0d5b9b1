package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thebtf/switchboard/pkg/client"
	"github.com/thebtf/switchboard/pkg/models"
)

// newWorkerClient builds the API client for the targeted worker. Overridable
// in tests.
var newWorkerClient = func() *client.Client {
	return client.New(client.BaseURL(workerPort()))
}

func workerPort() int {
	if flagPort > 0 {
		return flagPort
	}
	return client.WorkerPort()
}

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Run a free-text query against a workspace",
	Long: `Run a free-text query against a workspace and print the structured answer.

Examples:
  switchboard query "show all pending tasks" --workspace 3f2a8b9e-5c41-4b8f-9d67-2e8a1fd0c3b4
  switchboard query "how many points shipped" --workspace 3f2a8b9e-5c41-4b8f-9d67-2e8a1fd0c3b4 --user user_1
  switchboard query "what did we decide about pricing" --workspace 3f2a8b9e-5c41-4b8f-9d67-2e8a1fd0c3b4 --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workspace, _ := cmd.Flags().GetString("workspace")
		user, _ := cmd.Flags().GetString("user")
		bypassCache, _ := cmd.Flags().GetBool("bypass-cache")
		includeDebug, _ := cmd.Flags().GetBool("debug-info")
		asJSON, _ := cmd.Flags().GetBool("json")

		if workspace == "" {
			return fmt.Errorf("--workspace is required")
		}

		env, err := newWorkerClient().Query(cmd.Context(), &models.QueryRequest{
			Query:       args[0],
			WorkspaceID: workspace,
			UserID:      user,
			Options: models.QueryOptions{
				IncludeDebug: includeDebug,
				BypassCache:  bypassCache,
			},
		})
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(env)
		}
		printEnvelope(env)
		return nil
	},
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Show the queryable context of a workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		workspace, _ := cmd.Flags().GetString("workspace")
		user, _ := cmd.Flags().GetString("user")

		if workspace == "" {
			return fmt.Errorf("--workspace is required")
		}

		qctx, err := newWorkerClient().Context(cmd.Context(), workspace, user)
		if err != nil {
			return err
		}
		return printJSON(qctx)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show worker runtime statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := newWorkerClient().Stats(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var invalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Drop cached responses for a workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		workspace, _ := cmd.Flags().GetString("workspace")

		if workspace == "" {
			return fmt.Errorf("--workspace is required")
		}

		removed, err := newWorkerClient().InvalidateCache(cmd.Context(), workspace)
		if err != nil {
			return err
		}
		printSuccess("Removed %d cached responses", removed)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the worker is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		port := workerPort()
		if !client.IsWorkerRunning(port) {
			return fmt.Errorf("worker not running on port %d", port)
		}

		printSuccess("Worker running on port %d", port)
		if v := client.WorkerVersion(port); v != "" {
			printStatus("version", "%s", v)
		}
		if health, err := newWorkerClient().Health(cmd.Context()); err == nil {
			if state, ok := health["status"].(string); ok {
				printStatus("state", "%s", state)
			}
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the client version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "switchboard %s\n", Version)
	},
}

func init() {
	queryCmd.Flags().String("workspace", "", "workspace ID to query (required)")
	queryCmd.Flags().String("user", "", "user ID for permission scoping")
	queryCmd.Flags().Bool("bypass-cache", false, "skip the response cache")
	queryCmd.Flags().Bool("debug-info", false, "include routing debug info")
	queryCmd.Flags().Bool("json", false, "print the raw response envelope")

	contextCmd.Flags().String("workspace", "", "workspace ID (required)")
	contextCmd.Flags().String("user", "", "user ID for permission scoping")

	invalidateCmd.Flags().String("workspace", "", "workspace ID (required)")

	rootCmd.AddCommand(queryCmd, contextCmd, statsCmd, invalidateCmd, statusCmd, versionCmd)
}

// printEnvelope renders the envelope for terminal reading. Text-like blocks
// print their content; data-bearing blocks print indented JSON. Metadata goes
// to stderr so piped output stays clean.
func printEnvelope(env *models.Envelope) {
	for _, b := range env.Response.Blocks {
		switch b.Type {
		case models.BlockTable, models.BlockChart, models.BlockCitations:
			if b.Data != nil {
				if data, err := json.MarshalIndent(b.Data, "", "  "); err == nil {
					if b.Content != "" {
						fmt.Fprintln(os.Stdout, b.Content)
					}
					fmt.Fprintln(os.Stdout, string(data))
					continue
				}
			}
			if b.Content != "" {
				fmt.Fprintln(os.Stdout, b.Content)
			}
		default:
			if b.Content != "" {
				fmt.Fprintln(os.Stdout, b.Content)
			}
		}
	}

	meta := env.Response.Metadata
	line := fmt.Sprintf("confidence %.2f", meta.Confidence)
	if len(meta.DataSources) > 0 {
		line += " | sources: " + strings.Join(meta.DataSources, ", ")
	}
	fmt.Fprintln(os.Stderr, colorize(colorCyan, line))
	if len(meta.Suggestions) > 0 {
		fmt.Fprintln(os.Stderr, colorize(colorYellow, "try: "+strings.Join(meta.Suggestions, " | ")))
	}

	if env.Debug != nil {
		if env.Debug.Route != "" {
			printStatus("route", "%s", env.Debug.Route)
		}
		printStatus("cache hit", "%t", env.Debug.CacheHit)
	}
	if !env.Success {
		printWarning("query did not produce a confident answer")
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}
