package generate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rrajkowski/pickline/pkg/engine/gamectx"
	"github.com/rrajkowski/pickline/pkg/feeds/teams"
	"github.com/rrajkowski/pickline/pkg/pick"
)

// parseCandidates turns a raw backend reply into candidates. Model output is
// messy: markdown fences, prose around the JSON, a bare array or a wrapper
// object, string numbers. Individually bad entries are skipped; the parse
// only fails when nothing usable remains.
func parseCandidates(response string, contexts []gamectx.GameContext) ([]pick.Candidate, int, error) {
	response = stripMarkdownCodeBlocks(response)

	jsonStr := extractJSONValue(response)
	if jsonStr == "" {
		return nil, 0, fmt.Errorf("no JSON found in response")
	}

	items, err := decodeItems(jsonStr)
	if err != nil {
		return nil, 0, err
	}

	byGame := make(map[string]gamectx.GameContext, len(contexts))
	for _, ctx := range contexts {
		byGame[teams.NormalizeName(ctx.Game())] = ctx
	}

	var candidates []pick.Candidate
	unmatched := 0
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		c, ok := candidateFromMap(m, byGame)
		if !ok {
			unmatched++
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, unmatched, nil
}

// decodeItems accepts either a bare array or an object wrapping one under
// "picks" (or "candidates").
func decodeItems(jsonStr string) ([]interface{}, error) {
	var value interface{}
	if err := json.Unmarshal([]byte(jsonStr), &value); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	switch v := value.(type) {
	case []interface{}:
		return v, nil
	case map[string]interface{}:
		for _, key := range []string{"picks", "candidates"} {
			if arr, ok := v[key].([]interface{}); ok {
				return arr, nil
			}
		}
		// A single pick object at the top level.
		if _, ok := v["market"]; ok {
			return []interface{}{v}, nil
		}
		return nil, fmt.Errorf("no picks array in response object")
	default:
		return nil, fmt.Errorf("unexpected JSON shape %T", value)
	}
}

func candidateFromMap(m map[string]interface{}, byGame map[string]gamectx.GameContext) (pick.Candidate, bool) {
	game := extractString(m, "game")
	if game == "" {
		game = extractString(m, "matchup")
	}
	market, ok := marketFromString(extractString(m, "market"))
	if !ok || game == "" {
		return pick.Candidate{}, false
	}

	ctx, ok := byGame[teams.NormalizeName(game)]
	if !ok {
		// The model named a contest outside the batch.
		return pick.Candidate{}, false
	}

	c := pick.Candidate{
		ContestID:   ctx.ContestID,
		Game:        ctx.Game(),
		Sport:       ctx.Sport,
		Market:      market,
		Selection:   extractString(m, "selection"),
		Rationale:   extractString(m, "rationale"),
		ScheduledAt: ctx.ScheduledAt,
	}
	if c.Selection == "" {
		c.Selection = extractString(m, "pick")
	}

	c.Line = extractDecimal(m, "line")
	c.Odds = extractInt(m, "odds", -110)
	c.Confidence = clampConfidence(extractInt(m, "confidence", 3))

	for _, src := range ctx.Consensus {
		c.Sources = appendUnique(c.Sources, src.SourceID)
	}

	if market == pick.MarketParlay {
		legs, ok := legsFromMap(m, byGame)
		if !ok {
			return pick.Candidate{}, false
		}
		c.Legs = legs
		if c.Selection == "" {
			c.Selection = fmt.Sprintf("%d-leg parlay", len(legs))
		}
	} else if c.Selection == "" {
		return pick.Candidate{}, false
	}

	return c, true
}

func legsFromMap(m map[string]interface{}, byGame map[string]gamectx.GameContext) ([]pick.Leg, bool) {
	raw, ok := m["legs"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, false
	}
	var legs []pick.Leg
	for _, item := range raw {
		lm, ok := item.(map[string]interface{})
		if !ok {
			return nil, false
		}
		market, ok := marketFromString(extractString(lm, "market"))
		if !ok || market == pick.MarketParlay {
			return nil, false
		}
		selection := extractString(lm, "selection")
		if selection == "" {
			return nil, false
		}
		leg := pick.Leg{
			Game:      extractString(lm, "game"),
			Market:    market,
			Selection: selection,
			Line:      extractDecimal(lm, "line"),
			Result:    pick.ResultPending,
		}
		// Legs settle against their own game's slate, so carry that
		// contest's sport and start time when the batch knows it.
		if lctx, ok := byGame[teams.NormalizeName(leg.Game)]; ok {
			leg.Game = lctx.Game()
			leg.Sport = lctx.Sport
			leg.ScheduledAt = lctx.ScheduledAt
		}
		legs = append(legs, leg)
	}
	return legs, true
}

func marketFromString(s string) (pick.Market, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "h2h", "ml", "moneyline", "money line":
		return pick.MarketMoneyline, true
	case "spread", "spreads", "ats":
		return pick.MarketSpread, true
	case "total", "totals", "o/u", "over/under":
		return pick.MarketTotal, true
	case "parlay":
		return pick.MarketParlay, true
	}
	return "", false
}

func clampConfidence(c int) int {
	if c < 1 {
		return 1
	}
	if c > 5 {
		return 5
	}
	return c
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

// stripMarkdownCodeBlocks removes ```json ... ``` wrappers.
func stripMarkdownCodeBlocks(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

// extractJSONValue finds the first complete JSON array or object in a
// string, whichever opens first.
func extractJSONValue(s string) string {
	start := -1
	var open, close rune
	depth := 0
	inString := false
	escaped := false

	for i, c := range s {
		if start == -1 {
			switch c {
			case '[':
				start, open, close = i, '[', ']'
				depth = 1
			case '{':
				start, open, close = i, '{', '}'
				depth = 1
			}
			continue
		}
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func extractString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func extractInt(m map[string]interface{}, key string, def int) int {
	if v, ok := m[key]; ok {
		switch val := v.(type) {
		case float64:
			return int(val)
		case string:
			s := strings.TrimPrefix(strings.TrimSpace(val), "+")
			if n, err := strconv.Atoi(s); err == nil {
				return n
			}
		}
	}
	return def
}

func extractDecimal(m map[string]interface{}, key string) decimal.Decimal {
	if v, ok := m[key]; ok {
		switch val := v.(type) {
		case float64:
			return decimal.NewFromFloat(val)
		case string:
			s := strings.TrimPrefix(strings.TrimSpace(val), "+")
			if d, err := decimal.NewFromString(s); err == nil {
				return d
			}
		}
	}
	return decimal.Decimal{}
}
