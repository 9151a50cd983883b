package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentstate/agentstate/pkg/engine"
	"github.com/agentstate/agentstate/pkg/heap"
)

var queryCmd = &cobra.Command{
	Use:   "query <namespace>",
	Short: "List live objects in a namespace, optionally filtered",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tagCSV, _ := cmd.Flags().GetString("tags")
		jsonPath, _ := cmd.Flags().GetString("jsonpath")
		jsonValue, _ := cmd.Flags().GetString("jsonvalue")
		limit, _ := cmd.Flags().GetInt("limit")
		projCSV, _ := cmd.Flags().GetString("project")

		var tags []string
		if tagCSV != "" {
			tags = strings.Split(tagCSV, ",")
		}
		var projection []string
		if projCSV != "" {
			projection = strings.Split(projCSV, ",")
		}
		var value any
		if jsonPath != "" {
			// Accept JSON-typed values (--jsonvalue 5, --jsonvalue true,
			// --jsonvalue '"done"') as well as bare strings (--jsonvalue
			// done), since most callers won't bother quoting a string.
			if err := json.Unmarshal([]byte(jsonValue), &value); err != nil {
				value = jsonValue
			}
		}

		e, err := engine.Open(loadConfig(cmd))
		if err != nil {
			return fmt.Errorf("opening engine: %w", err)
		}
		defer e.Close()

		results, err := e.Query(args[0], heap.Query{
			TagFilter:  tags,
			JSONPath:   jsonPath,
			JSONValue:  value,
			Limit:      limit,
			Projection: projection,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

func init() {
	queryCmd.Flags().String("tags", "", "Comma-separated k:v tags, all must match")
	queryCmd.Flags().String("jsonpath", "", "JSONPath to evaluate against each object's body")
	queryCmd.Flags().String("jsonvalue", "", "Value --jsonpath must equal")
	queryCmd.Flags().Int("limit", 0, "Maximum results to return (0 means unlimited)")
	queryCmd.Flags().String("project", "", "Comma-separated top-level body keys to keep")
}
