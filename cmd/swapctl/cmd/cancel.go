package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <execution-id>",
	Short: "Cancel a running execution",
	Long:  `Requests cooperative cancellation; the orchestrator rolls the deployment back to its last stable allocation.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("/api/v1/deployments/%s/cancel", args[0])
		if err := postJSON(path, nil, nil); err != nil {
			return err
		}
		fmt.Printf("cancellation requested for %s\n", args[0])
		return nil
	},
}
