package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hotswap-labs/hotswapd/pkg/model"
)

var statusCmd = &cobra.Command{
	Use:   "status [execution-id]",
	Short: "Show execution status",
	Long:  `With an execution id, prints that execution's stage history; without one, lists all executions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			var execs []model.DeploymentExecution
			if err := getJSON("/api/v1/deployments", &execs); err != nil {
				return err
			}
			for _, e := range execs {
				fmt.Printf("%s  %-12s %s %s -> %s (%s)\n",
					e.ID, e.Status, e.Module, e.CurrentVersion, e.TargetVersion, e.Environment)
			}
			return nil
		}

		var e model.DeploymentExecution
		if err := getJSON("/api/v1/deployments/"+args[0], &e); err != nil {
			return err
		}
		fmt.Printf("execution %s\n", e.ID)
		fmt.Printf("  module:      %s %s -> %s\n", e.Module, e.CurrentVersion, e.TargetVersion)
		fmt.Printf("  environment: %s\n", e.Environment)
		fmt.Printf("  strategy:    %s\n", e.Strategy)
		fmt.Printf("  status:      %s", e.Status)
		if e.Reason != "" {
			fmt.Printf(" (%s)", e.Reason)
		}
		fmt.Println()
		for _, st := range e.Stages {
			marker := " "
			if st.Rollback {
				marker = "<"
			}
			fmt.Printf("  %s %-12s %3d%%  %s\n", marker, st.Status, st.Allocation, st.Name)
		}
		return nil
	},
}
