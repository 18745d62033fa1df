package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "List the available tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet(fmt.Sprintf("%s/api/tools", apiFlag))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	rootCmd.AddCommand(toolsCmd)

	marketCmd := &cobra.Command{Use: "market", Short: "XMRT market feeds"}
	miningCmd := &cobra.Command{
		Use:   "mining",
		Short: "Current mining pool statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet(fmt.Sprintf("%s/api/market/mining", apiFlag))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	priceCmd := &cobra.Command{
		Use:   "price",
		Short: "Current token price",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet(fmt.Sprintf("%s/api/market/price", apiFlag))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	marketCmd.AddCommand(miningCmd, priceCmd)
	rootCmd.AddCommand(marketCmd)
}
