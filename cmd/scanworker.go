package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/epam/syndicate-rule-engine-sub000/internal/cloudrunner"
	"github.com/epam/syndicate-rule-engine-sub000/internal/executor"
	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
	"github.com/spf13/cobra"
)

// scanworkerCmd is never invoked directly by an operator: it is the
// subcommand NativeLauncher re-execs the controller binary as, one process
// per region. It is hidden from `--help`.
var scanworkerCmd = &cobra.Command{
	Use:    "scanworker",
	Short:  "internal: evaluate one region's policies, reading a WorkerRequest from stdin",
	Hidden: true,
	RunE:   runScanworker,
}

func init() {
	rootCmd.AddCommand(scanworkerCmd)
}

func runScanworker(cmd *cobra.Command, _ []string) error {
	raw, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("read worker request: %w", err)
	}

	var req executor.WorkerRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("parse worker request: %w", err)
	}

	if err := os.MkdirAll(req.WorkDir, 0o755); err != nil {
		return fmt.Errorf("prepare workspace %s: %w", req.WorkDir, err)
	}

	runner, ok := cloudrunner.DefaultRegistry().For(req.Cloud)
	if !ok {
		return fmt.Errorf("no CloudRunner registered for cloud %q", req.Cloud)
	}

	result := executor.RunPolicies(req, stubEvaluator{}, runner.ClassifyError)

	out, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal worker result: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

// stubEvaluator is the default scanning engine binding: it reports every
// policy as having found zero resources. A real deployment wires an
// executor.Evaluator implementation in its place; the point where that
// happens is exactly here.
type stubEvaluator struct{}

func (stubEvaluator) Evaluate(_ model.Cloud, _ string, _ model.Policy) ([]map[string]interface{}, error) {
	return nil, nil
}
