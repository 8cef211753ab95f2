package espn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://site.api.espn.com"
	scoreboardPath = "/apis/site/v2/sports/football/nfl/scoreboard"
	dateParamFmt   = "20060102"
)

var ErrUnexpectedStatus = errors.New("espn: unexpected response status")

// GameState - состояние матча в терминах ESPN: pre, in, post.
type GameState string

const (
	StatePre  GameState = "pre"
	StateIn   GameState = "in"
	StatePost GameState = "post"
)

// StatusFinal - status.type.name завершенного матча.
const StatusFinal = "STATUS_FINAL"

// Game - матч из табло, приведенный к плоской структуре.
type Game struct {
	ProviderID   string
	HomeTeamName string
	AwayTeamName string
	HomeAbbr     string
	AwayAbbr     string
	Kickoff      time.Time
	State        GameState
	Completed    bool
	StatusName   string
	HomeScore    *int
	AwayScore    *int
	HomeSpread   *float64
}

// Final сообщает, что у матча окончательный результат.
// Перенесенные и отмененные матчи тоже приходят в состоянии post, но без completed.
func (g Game) Final() bool {
	return g.Completed || g.StatusName == StatusFinal
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchSchedule загружает матчи NFL в интервале дат [from, to] включительно.
func (c *Client) FetchSchedule(ctx context.Context, from, to time.Time) ([]Game, error) {
	params := url.Values{}
	params.Set("dates", from.UTC().Format(dateParamFmt)+"-"+to.UTC().Format(dateParamFmt))
	params.Set("limit", "500")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+scoreboardPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("espn scoreboard request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var scoreboard Scoreboard
	if err := json.NewDecoder(resp.Body).Decode(&scoreboard); err != nil {
		return nil, fmt.Errorf("error parsing espn scoreboard: %w", err)
	}

	games := make([]Game, 0, len(scoreboard.Events))
	for _, event := range scoreboard.Events {
		game, ok := eventToGame(event)
		if !ok {
			continue
		}
		games = append(games, game)
	}
	return games, nil
}

func eventToGame(event Event) (Game, bool) {
	if len(event.Competitions) == 0 {
		return Game{}, false
	}
	comp := event.Competitions[0]

	var home, away *Competitor
	for i := range comp.Competitors {
		switch comp.Competitors[i].HomeAway {
		case "home":
			home = &comp.Competitors[i]
		case "away":
			away = &comp.Competitors[i]
		}
	}
	if home == nil || away == nil {
		return Game{}, false
	}

	dateStr := comp.Date
	if dateStr == "" {
		dateStr = event.Date
	}
	kickoff, err := parseTime(dateStr)
	if err != nil {
		return Game{}, false
	}

	status := comp.Status
	if status.Type.State == "" {
		status = event.Status
	}

	game := Game{
		ProviderID:   event.ID,
		HomeTeamName: home.Team.DisplayName,
		AwayTeamName: away.Team.DisplayName,
		HomeAbbr:     home.Team.Abbreviation,
		AwayAbbr:     away.Team.Abbreviation,
		Kickoff:      kickoff,
		State:        GameState(status.Type.State),
		Completed:    status.Type.Completed,
		StatusName:   status.Type.Name,
	}
	if game.State != StatePre {
		game.HomeScore = parseScore(home.Score)
		game.AwayScore = parseScore(away.Score)
	}
	if len(comp.Odds) > 0 && comp.Odds[0].Details != "" {
		spread := comp.Odds[0].Spread
		game.HomeSpread = &spread
	}
	return game, true
}

func parseTime(s string) (time.Time, error) {
	layouts := []string{time.RFC3339, "2006-01-02T15:04Z07:00", "2006-01-02T15:04Z"}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func parseScore(s string) *int {
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}
