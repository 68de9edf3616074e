package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/drop-protocol/coordinator/coordinator/api"
	"github.com/drop-protocol/coordinator/coordinator/config"
)

// Output formats
const (
	OutputFormatYAML = "yaml"
	OutputFormatJSON = "json"
)

const queryHTTPTimeout = 10 * time.Second

// ModulesOutput represents the output format for module queries
type ModulesOutput struct {
	Module      *api.ModuleInfo  `yaml:"module,omitempty" json:"module,omitempty"`
	Modules     []api.ModuleInfo `yaml:"modules,omitempty" json:"modules,omitempty"`
	LastUpdated time.Time        `yaml:"last_updated" json:"last_updated"`
}

// QueryResponse represents the standard query response format from HTTP API
type QueryResponse struct {
	Data        json.RawMessage `json:"data"`
	LastUpdated time.Time       `json:"last_updated"`
}

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "query",
		Aliases: []string{"q"},
		Short:   "Query a running coordinator over its HTTP API",
	}

	cmd.PersistentFlags().String("node", "", "Coordinator API address (default http://localhost:$QUERY_SERVER_PORT)")
	cmd.AddCommand(
		queryHealthCmd(),
		queryModulesCmd(),
		queryModuleCmd(),
		queryHistoryCmd(),
		queryFactoryCmd(),
	)
	return cmd
}

func queryHealthCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query scheduler liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			var health api.HealthInfo
			// 503 still carries the health body
			if err := getJSON(cmd, "/health", &health, http.StatusServiceUnavailable); err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), health, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func queryModulesCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "modules",
		Short: "Query every scheduled module",
		RunE: func(cmd *cobra.Command, args []string) error {
			var queryResp QueryResponse
			if err := getJSON(cmd, "/api/v1/modules", &queryResp); err != nil {
				return err
			}

			var infos []api.ModuleInfo
			if err := json.Unmarshal(queryResp.Data, &infos); err != nil {
				return fmt.Errorf("failed to unmarshal modules: %w", err)
			}

			return printOutput(cmd.OutOrStdout(), ModulesOutput{
				Modules:     infos,
				LastUpdated: queryResp.LastUpdated,
			}, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func queryModuleCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "module [name]",
		Short: "Query one module's configuration and run status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var queryResp QueryResponse
			if err := getJSON(cmd, "/api/v1/modules/"+url.PathEscape(args[0]), &queryResp); err != nil {
				return err
			}

			var info api.ModuleInfo
			if err := json.Unmarshal(queryResp.Data, &info); err != nil {
				return fmt.Errorf("failed to unmarshal module: %w", err)
			}

			return printOutput(cmd.OutOrStdout(), ModulesOutput{
				Module:      &info,
				LastUpdated: queryResp.LastUpdated,
			}, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

// HistoryOutput represents the output format for module history queries
type HistoryOutput struct {
	Module      string          `yaml:"module" json:"module"`
	Runs        []api.RunRecord `yaml:"runs" json:"runs"`
	LastUpdated time.Time       `yaml:"last_updated" json:"last_updated"`
}

func queryHistoryCmd() *cobra.Command {
	var (
		limit        int
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "history [module]",
		Short: "Query a module's persisted cycle history, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/api/v1/modules/%s/history?limit=%d", url.PathEscape(args[0]), limit)

			var queryResp QueryResponse
			if err := getJSON(cmd, path, &queryResp); err != nil {
				return err
			}

			var runs []api.RunRecord
			if err := json.Unmarshal(queryResp.Data, &runs); err != nil {
				return fmt.Errorf("failed to unmarshal history: %w", err)
			}

			return printOutput(cmd.OutOrStdout(), HistoryOutput{
				Module:      args[0],
				Runs:        runs,
				LastUpdated: queryResp.LastUpdated,
			}, outputFormat)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func queryFactoryCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "factory",
		Short: "Query the factory state the coordinator is using",
		RunE: func(cmd *cobra.Command, args []string) error {
			var queryResp QueryResponse
			if err := getJSON(cmd, "/api/v1/factory", &queryResp); err != nil {
				return err
			}

			var info api.FactoryInfo
			if err := json.Unmarshal(queryResp.Data, &info); err != nil {
				return fmt.Errorf("failed to unmarshal factory state: %w", err)
			}
			return printOutput(cmd.OutOrStdout(), info, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

// nodeAddress resolves the --node flag, falling back to QUERY_SERVER_PORT on localhost.
// The port is read from the environment or the --env-file file.
func nodeAddress(cmd *cobra.Command) (string, error) {
	node, err := cmd.Flags().GetString("node")
	if err != nil {
		return "", err
	}
	if node != "" {
		return strings.TrimSuffix(node, "/"), nil
	}

	port := 8080
	if raw := strings.TrimSpace(lookupEnv(cmd, config.KeyQueryServerPort)); raw != "" {
		if port, err = cast.ToIntE(raw); err != nil {
			return "", fmt.Errorf("%s must be an integer, got %q", config.KeyQueryServerPort, raw)
		}
	}
	return fmt.Sprintf("http://localhost:%d", port), nil
}

// lookupEnv reads key from the process environment, then from the --env-file
// dotenv file without merging it.
func lookupEnv(cmd *cobra.Command, key string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	envFile, err := cmd.Flags().GetString(envFileFlag)
	if err != nil || envFile == "" {
		return ""
	}
	values, err := godotenv.Read(envFile)
	if err != nil {
		return ""
	}
	return values[key]
}

// getJSON fetches path from the coordinator API into out. Status 200 and any
// status listed in alsoOK are decoded; other statuses become errors.
func getJSON(cmd *cobra.Command, path string, out interface{}, alsoOK ...int) error {
	node, err := nodeAddress(cmd)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: queryHTTPTimeout}
	resp, err := client.Get(node + path)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", path, err)
	}
	defer resp.Body.Close()

	ok := resp.StatusCode == http.StatusOK
	for _, code := range alsoOK {
		ok = ok || resp.StatusCode == code
	}
	if !ok {
		var errResp api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error == "" {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return fmt.Errorf("server error: %s", errResp.Error)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// printOutput prints the output in the specified format
func printOutput(w io.Writer, data interface{}, format string) error {
	switch format {
	case OutputFormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	case OutputFormatYAML:
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		return encoder.Encode(data)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}
