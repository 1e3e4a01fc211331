package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func deepDiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deepdive <coin-id>",
		Short: "Show vitals, VTMR and price velocity for one CoinGecko coin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			report, err := svc.deepDive.Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}
