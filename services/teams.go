package services

import "strings"

var nflTeamAbbreviations = map[string]string{
	"arizona cardinals":        "ARI",
	"atlanta falcons":          "ATL",
	"baltimore ravens":         "BAL",
	"buffalo bills":            "BUF",
	"carolina panthers":        "CAR",
	"chicago bears":            "CHI",
	"cincinnati bengals":       "CIN",
	"cleveland browns":         "CLE",
	"dallas cowboys":           "DAL",
	"denver broncos":           "DEN",
	"detroit lions":            "DET",
	"green bay packers":        "GB",
	"houston texans":           "HOU",
	"indianapolis colts":       "IND",
	"jacksonville jaguars":     "JAX",
	"kansas city chiefs":       "KC",
	"las vegas raiders":        "LV",
	"los angeles chargers":     "LAC",
	"los angeles rams":         "LAR",
	"miami dolphins":           "MIA",
	"minnesota vikings":        "MIN",
	"new england patriots":     "NE",
	"new orleans saints":       "NO",
	"new york giants":          "NYG",
	"new york jets":            "NYJ",
	"philadelphia eagles":      "PHI",
	"pittsburgh steelers":      "PIT",
	"san francisco 49ers":      "SF",
	"seattle seahawks":         "SEA",
	"tampa bay buccaneers":     "TB",
	"tennessee titans":         "TEN",
	"washington commanders":    "WSH",
	"washington football team": "WSH",
	"oakland raiders":          "LV",
	"san diego chargers":       "LAC",
	"st. louis rams":           "LAR",
}

// Старые и альтернативные аббревиатуры провайдеров.
var nflAbbreviationAliases = map[string]string{
	"WAS": "WSH",
	"JAC": "JAX",
	"LA":  "LAR",
	"OAK": "LV",
	"SD":  "LAC",
	"STL": "LAR",
}

// NormalizeTeam возвращает аббревиатуру команды по полному названию,
// а если название неизвестно, то по аббревиатуре провайдера.
func NormalizeTeam(name, abbreviation string) string {
	if abbr, ok := nflTeamAbbreviations[strings.ToLower(strings.TrimSpace(name))]; ok {
		return abbr
	}
	abbr := strings.ToUpper(strings.TrimSpace(abbreviation))
	if alias, ok := nflAbbreviationAliases[abbr]; ok {
		return alias
	}
	return abbr
}
