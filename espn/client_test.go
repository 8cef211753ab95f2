package espn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const scoreboardFixture = `{
  "leagues": [{"id": "28", "slug": "nfl", "season": {"year": 2025, "startDate": "2025-07-31T07:00Z", "endDate": "2026-02-12T07:59Z"}}],
  "events": [
    {
      "id": "401772510",
      "date": "2025-09-05T00:20Z",
      "name": "Dallas Cowboys at Philadelphia Eagles",
      "competitions": [{
        "id": "401772510",
        "date": "2025-09-05T00:20Z",
        "competitors": [
          {"id": "21", "homeAway": "home", "score": "24", "winner": true,
           "team": {"abbreviation": "PHI", "displayName": "Philadelphia Eagles"}},
          {"id": "6", "homeAway": "away", "score": "20",
           "team": {"abbreviation": "DAL", "displayName": "Dallas Cowboys"}}
        ],
        "odds": [{"details": "PHI -8.5", "spread": -8.5, "overUnder": 47.5}],
        "status": {"type": {"state": "post", "completed": true, "name": "STATUS_FINAL"}}
      }]
    },
    {
      "id": "401772714",
      "date": "2025-09-07T17:00Z",
      "competitions": [{
        "date": "2025-09-07T17:00Z",
        "competitors": [
          {"homeAway": "home", "score": "0", "team": {"abbreviation": "ATL", "displayName": "Atlanta Falcons"}},
          {"homeAway": "away", "score": "0", "team": {"abbreviation": "TB", "displayName": "Tampa Bay Buccaneers"}}
        ],
        "status": {"type": {"state": "pre", "completed": false}}
      }]
    },
    {"id": "broken", "date": "2025-09-07T17:00Z", "competitions": []}
  ]
}`

func TestFetchSchedule(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, scoreboardPath, r.URL.Path)
		gotQuery = r.URL.Query().Get("dates")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(scoreboardFixture))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	from := time.Date(2025, 9, 4, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC)

	games, err := client.FetchSchedule(context.Background(), from, to)
	require.NoError(t, err)
	require.Equal(t, "20250904-20250910", gotQuery)
	require.Len(t, games, 2)

	final := games[0]
	require.Equal(t, "401772510", final.ProviderID)
	require.Equal(t, "PHI", final.HomeAbbr)
	require.Equal(t, "Dallas Cowboys", final.AwayTeamName)
	require.True(t, final.Completed)
	require.Equal(t, StatusFinal, final.StatusName)
	require.True(t, final.Final())
	require.Equal(t, StatePost, final.State)
	require.NotNil(t, final.HomeScore)
	require.Equal(t, 24, *final.HomeScore)
	require.Equal(t, 20, *final.AwayScore)
	require.NotNil(t, final.HomeSpread)
	require.InDelta(t, -8.5, *final.HomeSpread, 0.001)
	require.Equal(t, time.Date(2025, 9, 5, 0, 20, 0, 0, time.UTC), final.Kickoff)

	upcoming := games[1]
	require.Equal(t, StatePre, upcoming.State)
	require.Nil(t, upcoming.HomeScore)
	require.Nil(t, upcoming.HomeSpread)
	require.False(t, upcoming.Final())
}

func TestGameFinal(t *testing.T) {
	require.True(t, Game{State: StatePost, Completed: true}.Final())
	require.True(t, Game{State: StatePost, StatusName: StatusFinal}.Final())
	require.False(t, Game{State: StatePost, StatusName: "STATUS_POSTPONED"}.Final())
	require.False(t, Game{State: StatePost, StatusName: "STATUS_CANCELED"}.Final())
	require.False(t, Game{State: StateIn}.Final())
}

func TestFetchScheduleUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	_, err := client.FetchSchedule(context.Background(), time.Now(), time.Now())
	require.ErrorIs(t, err, ErrUnexpectedStatus)
}
