package main

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show generation queue status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cfg, logger)
		if err != nil {
			return err
		}
		defer rt.close()

		st := rt.orch.QueueStatus()
		return printJSON(cmd, map[string]any{
			"pending":    len(st.Pending),
			"processing": len(st.Processing),
			"completed":  len(st.Completed),
			"failed":     len(st.Failed),
			"capacity":   rt.orch.Capacity(),
			"queue":      st,
		})
	},
}
