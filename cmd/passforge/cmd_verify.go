package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"passforge/internal/verification"
)

var (
	verifyCustomer string
	verifyQuick    bool
	verifyAll      bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify [card-id]",
	Short: "Run the wallet-chain verification battery",
	Long: `Verify that the three pass artifacts for a card are structurally and
semantically consistent with its canonical data. --quick prints only
critical failures (the pre-publish gate); --all sweeps every card in the
store.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cfg, logger)
		if err != nil {
			return err
		}
		defer rt.close()

		if verifyAll {
			return runVerifySweep(cmd, rt)
		}
		if len(args) == 0 {
			return fmt.Errorf("a card id is required unless --all is set")
		}

		if verifyQuick {
			valid, issues := rt.verifier.QuickVerifyWalletChain(cmd.Context(), args[0], verifyCustomer)
			return printJSON(cmd, map[string]any{"valid": valid, "issues": issues})
		}

		report := rt.verifier.VerifyWalletChain(cmd.Context(), args[0], verifyCustomer)
		if err := printJSON(cmd, report); err != nil {
			return err
		}
		if report.Status == verification.StatusFailed {
			return fmt.Errorf("verification failed: %d critical issue(s)", report.Summary.Critical)
		}
		return nil
	},
}

// runVerifySweep runs the battery across every card and summarizes by
// severity; the scheduled audit job calls the same path.
func runVerifySweep(cmd *cobra.Command, rt *runtime) error {
	refs, err := rt.store.ListCards(cmd.Context())
	if err != nil {
		return err
	}

	type sweepRow struct {
		CardID   string               `json:"card_id"`
		Kind     string               `json:"kind"`
		Status   string               `json:"status"`
		Summary  verification.Summary `json:"summary"`
	}

	var rows []sweepRow
	failed := 0
	for _, ref := range refs {
		report := rt.verifier.VerifyWalletChain(cmd.Context(), ref.ID, "")
		if report.Status == verification.StatusFailed {
			failed++
		}
		rows = append(rows, sweepRow{
			CardID:  ref.ID,
			Kind:    string(ref.Kind),
			Status:  report.Status,
			Summary: report.Summary,
		})
	}

	logger.Info("verification sweep finished",
		zap.Int("cards", len(rows)),
		zap.Int("failed", failed))
	if err := printJSON(cmd, rows); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d cards failed verification", failed, len(rows))
	}
	return nil
}

func init() {
	verifyCmd.Flags().StringVar(&verifyCustomer, "customer", "", "customer id for an issued instance")
	verifyCmd.Flags().BoolVar(&verifyQuick, "quick", false, "print only critical failures")
	verifyCmd.Flags().BoolVar(&verifyAll, "all", false, "verify every card in the store")
}
