package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders the candidate rows as CSV. Failure reasons are joined
// with "; " and quoted.
func RenderCSV(rows []CandidateRow) string {
	var sb strings.Builder

	sb.WriteString("candidate_id,instrument,window,entry,exit,risk,stage,run_id,passed,")
	sb.WriteString("survival_score,tier,trades,win_rate,avg_r,max_drawdown_r,profit_factor,failure_reasons\n")

	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%s,%s,%s,%t,%.4f,%s,%d,%.6f,%.6f,%.6f,%.6f,%s\n",
			r.CandidateID,
			r.Instrument,
			quote(r.Window),
			r.Entry,
			r.Exit,
			r.Risk,
			r.Stage,
			r.RunID,
			r.Passed,
			r.Score,
			r.Tier,
			r.Trades,
			r.WinRate,
			r.AvgR,
			r.MaxDrawdownR,
			r.ProfitFactor,
			quote(strings.Join(r.FailureReasons, "; ")),
		))
	}

	return sb.String()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
