package config

import (
	"github.com/spf13/pflag"
)

// BindThresholdFlags registers the threshold overrides on fs. Defaults come
// from t so that file values show up in --help.
func BindThresholdFlags(fs *pflag.FlagSet, t *Thresholds) {
	fs.Float64Var(&t.MinVTMR, "min-vtmr", t.MinVTMR, "Minimum VTMR for small caps")
	fs.Float64Var(&t.MaxVTMR, "max-vtmr", t.MaxVTMR, "Maximum VTMR for all tokens")
	fs.Float64Var(&t.MinLargeCapVTMR, "min-largecap-vtmr", t.MinLargeCapVTMR, "Minimum VTMR for large caps")
	fs.Float64Var(&t.LargeCapUSD, "large-cap", t.LargeCapUSD, "Market cap above which a token counts as large cap")
}

// BindReconcileFlags registers the cross-market threshold overrides on fs.
func BindReconcileFlags(fs *pflag.FlagSet, r *ReconcileConfig) {
	fs.Float64Var(&r.FuturesMinVTMR, "futures-min-vtmr", r.FuturesMinVTMR, "Minimum futures VTMR kept for matching")
	fs.Float64Var(&r.SpotOnlyMinVTMR, "spot-only-min-vtmr", r.SpotOnlyMinVTMR, "Minimum VTMR for spot-only tokens")
}
