package teams

// builtinAliases maps sport -> canonical team name -> known variants.
// Consensus sources quote cities, nicknames and abbreviations
// interchangeably; indexing all of them keeps the merge keys stable.
// Sports without a table here pass names through unchanged.
var builtinAliases = map[string]map[string][]string{
	"basketball_nba": {
		"Atlanta Hawks":          {"Atlanta", "Hawks", "ATL"},
		"Boston Celtics":         {"Boston", "Celtics", "BOS"},
		"Brooklyn Nets":          {"Brooklyn", "Nets", "BKN"},
		"Charlotte Hornets":      {"Charlotte", "Hornets", "CHA"},
		"Chicago Bulls":          {"Chicago", "Bulls", "CHI"},
		"Cleveland Cavaliers":    {"Cleveland", "Cavaliers", "Cavs", "CLE"},
		"Dallas Mavericks":       {"Dallas", "Mavericks", "Mavs", "DAL"},
		"Denver Nuggets":         {"Denver", "Nuggets", "DEN"},
		"Detroit Pistons":        {"Detroit", "Pistons", "DET"},
		"Golden State Warriors":  {"Golden State", "Warriors", "GSW", "GS"},
		"Houston Rockets":        {"Houston", "Rockets", "HOU"},
		"Indiana Pacers":         {"Indiana", "Pacers", "IND"},
		"Los Angeles Clippers":   {"LA Clippers", "Clippers", "LAC"},
		"Los Angeles Lakers":     {"LA Lakers", "Lakers", "LAL"},
		"Memphis Grizzlies":      {"Memphis", "Grizzlies", "MEM"},
		"Miami Heat":             {"Miami", "Heat", "MIA"},
		"Milwaukee Bucks":        {"Milwaukee", "Bucks", "MIL"},
		"Minnesota Timberwolves": {"Minnesota", "Timberwolves", "Wolves", "MIN"},
		"New Orleans Pelicans":   {"New Orleans", "Pelicans", "NOP", "NO"},
		"New York Knicks":        {"New York", "Knicks", "NYK", "NY"},
		"Oklahoma City Thunder":  {"Oklahoma City", "Thunder", "OKC"},
		"Orlando Magic":          {"Orlando", "Magic", "ORL"},
		"Philadelphia 76ers":     {"Philadelphia", "76ers", "Sixers", "PHI"},
		"Phoenix Suns":           {"Phoenix", "Suns", "PHX"},
		"Portland Trail Blazers": {"Portland", "Trail Blazers", "Blazers", "POR"},
		"Sacramento Kings":       {"Sacramento", "Kings", "SAC"},
		"San Antonio Spurs":      {"San Antonio", "Spurs", "SA", "SAS"},
		"Toronto Raptors":        {"Toronto", "Raptors", "TOR"},
		"Utah Jazz":              {"Utah", "Jazz", "UTA"},
		"Washington Wizards":     {"Washington", "Wizards", "WAS"},
	},
	"icehockey_nhl": {
		"Boston Bruins":        {"Bruins", "BOS"},
		"Chicago Blackhawks":   {"Blackhawks", "CHI"},
		"Colorado Avalanche":   {"Avalanche", "Avs", "COL"},
		"Edmonton Oilers":      {"Oilers", "EDM"},
		"Florida Panthers":     {"Panthers", "FLA"},
		"New York Rangers":     {"Rangers", "NYR"},
		"Tampa Bay Lightning":  {"Lightning", "TB", "TBL"},
		"Toronto Maple Leafs":  {"Maple Leafs", "Leafs", "TOR"},
		"Vegas Golden Knights": {"Golden Knights", "Vegas", "VGK"},
	},
}
