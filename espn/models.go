package espn

// Scoreboard - ответ site.api.espn.com/apis/site/v2/sports/football/nfl/scoreboard.
// Оставлены только поля, которые использует синхронизация расписания.
type Scoreboard struct {
	Leagues []struct {
		ID     string `json:"id"`
		Slug   string `json:"slug"`
		Season struct {
			Year      int    `json:"year"`
			StartDate string `json:"startDate"`
			EndDate   string `json:"endDate"`
		} `json:"season"`
	} `json:"leagues"`
	Events []Event `json:"events"`
}

type Event struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	ShortName string `json:"shortName"`
	Season    struct {
		Year int    `json:"year"`
		Type int    `json:"type"`
		Slug string `json:"slug"`
	} `json:"season"`
	Week struct {
		Number int `json:"number"`
	} `json:"week"`
	Competitions []Competition `json:"competitions"`
	Status       Status        `json:"status"`
}

type Competition struct {
	ID          string       `json:"id"`
	Date        string       `json:"date"`
	NeutralSite bool         `json:"neutralSite"`
	Competitors []Competitor `json:"competitors"`
	Odds        []Odds       `json:"odds"`
	Status      Status       `json:"status"`
}

type Status struct {
	Clock        float64 `json:"clock"`
	DisplayClock string  `json:"displayClock"`
	Period       int     `json:"period"`
	Type         struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		State       string `json:"state"`
		Completed   bool   `json:"completed"`
		Description string `json:"description"`
		Detail      string `json:"detail"`
	} `json:"type"`
}

type Competitor struct {
	ID       string `json:"id"`
	HomeAway string `json:"homeAway"`
	Winner   bool   `json:"winner"`
	Score    string `json:"score"`
	Team     Team   `json:"team"`
}

type Team struct {
	ID               string `json:"id"`
	Location         string `json:"location"`
	Name             string `json:"name"`
	Abbreviation     string `json:"abbreviation"`
	DisplayName      string `json:"displayName"`
	ShortDisplayName string `json:"shortDisplayName"`
}

type Odds struct {
	Provider struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Priority int    `json:"priority"`
	} `json:"provider"`
	Details   string  `json:"details"`
	OverUnder float64 `json:"overUnder"`
	Spread    float64 `json:"spread"`
}
