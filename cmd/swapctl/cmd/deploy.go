package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Submit a module deployment",
	Long:  `Submits a hot-swap deployment request built from a YAML request file and prints the execution id.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}

		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read request file: %w", err)
		}
		var rf requestFile
		if err := yaml.Unmarshal(data, &rf); err != nil {
			return fmt.Errorf("parse request file: %w", err)
		}
		req, err := rf.toSubmitRequest()
		if err != nil {
			return err
		}

		logger.Info("submitting deployment",
			zap.String("module", req.Module),
			zap.String("environment", req.Environment),
			zap.String("strategy", string(req.Strategy)),
		)

		var out struct {
			ID string `json:"id"`
		}
		if err := postJSON("/api/v1/deployments", req, &out); err != nil {
			return err
		}

		fmt.Printf("execution %s submitted\n", out.ID)
		return nil
	},
}

func init() {
	deployCmd.Flags().String("file", "", "Path to deployment request YAML")
}
