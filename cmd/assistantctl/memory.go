package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	memoryCmd := &cobra.Command{Use: "memory", Short: "Memory operations"}

	var contextType string
	var importance float64
	storeCmd := &cobra.Command{
		Use:   "store CONTENT",
		Short: "Store a memory entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{
				"content":          args[0],
				"context_type":     contextType,
				"importance_score": importance,
			}
			data, err := doPostJSON(fmt.Sprintf("%s/api/memory", apiFlag), payload)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	storeCmd.Flags().StringVarP(&contextType, "type", "t", "conversation", "Context type")
	storeCmd.Flags().Float64VarP(&importance, "importance", "i", 0.5, "Importance score [0,1]")
	memoryCmd.AddCommand(storeCmd)

	var limit int
	var threshold float64
	var queryType string
	queryCmd := &cobra.Command{
		Use:   "query TEXT",
		Short: "Query memories by similarity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{
				"query":     args[0],
				"limit":     limit,
				"threshold": threshold,
			}
			if queryType != "" {
				payload["context_type"] = queryType
			}
			data, err := doPostJSON(fmt.Sprintf("%s/api/memory/query", apiFlag), payload)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	queryCmd.Flags().IntVarP(&limit, "limit", "k", 5, "Max results")
	queryCmd.Flags().Float64Var(&threshold, "threshold", 0.0, "Minimum similarity")
	queryCmd.Flags().StringVarP(&queryType, "type", "t", "", "Filter by context type")
	memoryCmd.AddCommand(queryCmd)

	rootCmd.AddCommand(memoryCmd)
}
