package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var approveCmd = &cobra.Command{
	Use:   "approve <execution-id>",
	Short: "Resolve a waiting approval gate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		by, _ := cmd.Flags().GetString("by")
		reject, _ := cmd.Flags().GetBool("reject")
		reason, _ := cmd.Flags().GetString("reason")

		body := map[string]string{"by": by, "reason": reason}
		path := fmt.Sprintf("/api/v1/deployments/%s/approve", args[0])
		verb := "approved"
		if reject {
			path = fmt.Sprintf("/api/v1/deployments/%s/reject", args[0])
			verb = "rejected"
		}
		if err := postJSON(path, body, nil); err != nil {
			return err
		}
		fmt.Printf("execution %s %s\n", args[0], verb)
		return nil
	},
}

func init() {
	approveCmd.Flags().String("by", "", "Approver identity")
	approveCmd.Flags().Bool("reject", false, "Reject instead of approve")
	approveCmd.Flags().String("reason", "", "Rejection reason")
}
