package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"passforge/internal/encoder"
	"passforge/internal/orchestrator"
)

var (
	generateCustomer  string
	generatePlatforms []string
	generatePriority  string
	pollInterval      = 20 * time.Millisecond
)

var generateCmd = &cobra.Command{
	Use:   "generate <card-id>",
	Short: "Generate pass artifacts for a card",
	Long: `Enqueue a generation request for the given card and wait for the
result. Without --platforms all three targets are generated.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cfg, logger)
		if err != nil {
			return err
		}
		defer rt.close()

		platforms := make([]encoder.Platform, 0, len(generatePlatforms))
		for _, p := range generatePlatforms {
			platforms = append(platforms, encoder.Platform(strings.ToLower(p)))
		}

		id, err := rt.orch.Enqueue(orchestrator.EnqueueParams{
			CardID:     args[0],
			CustomerID: generateCustomer,
			Platforms:  platforms,
			Priority:   orchestrator.Priority(generatePriority),
		})
		if err != nil {
			return err
		}
		logger.Info("request enqueued", zap.String("request_id", id))

		// The queue is asynchronous by contract; the CLI polls the same
		// read model an external caller would.
		for {
			if res := rt.orch.GetResult(id); res != nil {
				return printJSON(cmd, res)
			}
			if f := rt.orch.GetFailure(id); f != nil {
				return fmt.Errorf("generation failed: %s", f.Error)
			}
			time.Sleep(pollInterval)
		}
	},
}

func init() {
	generateCmd.Flags().StringVar(&generateCustomer, "customer", "", "customer id for an issued instance (omit for a template pass)")
	generateCmd.Flags().StringSliceVar(&generatePlatforms, "platforms", []string{"apple", "google", "web"}, "target platforms")
	generateCmd.Flags().StringVar(&generatePriority, "priority", "normal", "queue priority: high, normal, low")
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
