package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateWAL float64
	simulateSUI float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-check",
	Short: "模拟一次价格检查并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateWAL <= 0 || simulateSUI <= 0 {
			return errors.New("--wal 与 --sui 必须大于 0")
		}

		wal := decimal.NewFromFloat(simulateWAL)
		sui := decimal.NewFromFloat(simulateSUI)
		return getApp().SimulateCheck(cmd.Context(), wal, sui)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateWAL, "wal", 0, "模拟的 WAL 价格 (USDT)")
	simulateCmd.Flags().Float64Var(&simulateSUI, "sui", 0, "模拟的 SUI 价格 (USDT)")
}
