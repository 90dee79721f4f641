package generate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rrajkowski/pickline/pkg/engine/gamectx"
)

const defaultSystemPrompt = `You are a sports betting analyst. You receive a batch of upcoming games with multi-source betting consensus and respond ONLY with JSON: an array of pick objects. Each pick object has the fields game, market (h2h, spreads, totals or parlay), selection, line, odds (American), confidence (integer 1-5) and rationale. Parlay picks carry a legs array instead of a single selection. Never invent games outside the provided batch.`

// buildPrompt serializes the context batch plus the run parameters into a
// single user prompt.
func buildPrompt(contexts []gamectx.GameContext, params Params) string {
	var b strings.Builder

	target := params.TargetCount
	if target <= 0 {
		target = 5
	}
	fmt.Fprintf(&b, "Generate up to %d betting picks for the games below.\n", target)
	if params.RiskProfile != "" {
		fmt.Fprintf(&b, "Risk profile: %s.\n", params.RiskProfile)
	}
	if params.Instructions != "" {
		fmt.Fprintf(&b, "%s\n", params.Instructions)
	}
	b.WriteString("\nGames and consensus data:\n")

	for _, ctx := range contexts {
		view := contextView{
			Game:        ctx.Game(),
			Sport:       ctx.Sport,
			ScheduledAt: ctx.ScheduledAt.Format("2006-01-02 15:04 MST"),
		}
		for _, rec := range ctx.Consensus {
			cv := consensusView{
				Source: rec.SourceID,
				Market: string(rec.Market),
				Side:   rec.Side,
			}
			if rec.Line.Valid {
				cv.Line = rec.Line.Decimal.String()
			}
			if rec.Odds != nil {
				cv.Odds = *rec.Odds
			}
			if rec.Strength != nil {
				cv.Strength = fmt.Sprintf("%.0f%%", *rec.Strength*100)
			}
			view.Consensus = append(view.Consensus, cv)
		}
		for _, sig := range ctx.Signals {
			view.Signals = append(view.Signals, fmt.Sprintf("%s %s: %s", sig.Kind, sig.Team, sig.Value))
		}

		enc, err := json.Marshal(view)
		if err != nil {
			continue
		}
		b.Write(enc)
		b.WriteByte('\n')
	}

	b.WriteString("\nRespond with the JSON array only.")
	return b.String()
}

type contextView struct {
	Game        string          `json:"game"`
	Sport       string          `json:"sport"`
	ScheduledAt string          `json:"scheduled_at"`
	Consensus   []consensusView `json:"consensus"`
	Signals     []string        `json:"signals,omitempty"`
}

type consensusView struct {
	Source   string `json:"source"`
	Market   string `json:"market"`
	Side     string `json:"side"`
	Line     string `json:"line,omitempty"`
	Odds     int    `json:"odds,omitempty"`
	Strength string `json:"strength,omitempty"`
}
