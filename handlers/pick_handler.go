package handlers

import (
	"errors"
	"net/http"

	"github.com/prizmbets/pickem/middleware"
	"github.com/prizmbets/pickem/services"
)

type PickHandler struct {
	pickService      services.PickService
	standingsService services.StandingsService
}

func NewPickHandler(ps services.PickService, ss services.StandingsService) *PickHandler {
	return &PickHandler{
		pickService:      ps,
		standingsService: ss,
	}
}

type submitPicksRequest struct {
	Picks []services.PickInput `json:"picks"`
}

// SubmitPicks godoc
// @Summary Отправить пики на неделю
// @Description Пики по начавшимся матчам или после дедлайна пропускаются с причиной.
// @Tags picks
// @Accept json
// @Produce json
// @Param poolID path int true "Pool ID"
// @Param input body submitPicksRequest true "Пики"
// @Success 200 {object} map[string]interface{} "submitted, created, updated, skipped"
// @Failure 400 {object} map[string]interface{} "Пустой список пиков"
// @Failure 403 {object} map[string]interface{} "Не участник пула"
// @Security BearerAuth
// @Router /pickem/pools/{poolID}/picks [post]
func (h *PickHandler) SubmitPicks(w http.ResponseWriter, r *http.Request) {
	poolID, err := getIDFromURL(r, "poolID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "failed to identify current user")
		return
	}

	var input submitPicksRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if len(input.Picks) == 0 {
		badRequestResponse(w, r, errors.New("picks must be a non-empty array"))
		return
	}

	result, err := h.pickService.SubmitPicks(r.Context(), poolID, currentUserID, input.Picks)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, jsonResponse{
		"submitted": result.Submitted,
		"created":   result.Created,
		"updated":   result.Updated,
		"skipped":   result.Skipped,
	})
}

// GetPicks godoc
// @Summary Пики текущего пользователя за неделю
// @Tags picks
// @Produce json
// @Param poolID path int true "Pool ID"
// @Param week query int false "Номер недели (по умолчанию текущая)"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{} "Не участник пула"
// @Failure 404 {object} map[string]interface{} "Неделя не найдена"
// @Security BearerAuth
// @Router /pickem/pools/{poolID}/picks [get]
func (h *PickHandler) GetPicks(w http.ResponseWriter, r *http.Request) {
	poolID, err := getIDFromURL(r, "poolID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "failed to identify current user")
		return
	}
	week, err := getOptionalIntQuery(r, "week")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	picks, err := h.pickService.GetPicks(r.Context(), poolID, currentUserID, week)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, jsonResponse{
		"week":            picks.Week,
		"picks":           picks.Picks,
		"deadline_passed": picks.DeadlinePassed,
	})
}

// GetLeaderboard godoc
// @Summary Сезонная таблица пула
// @Tags standings
// @Produce json
// @Param poolID path int true "Pool ID"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{} "Не участник пула"
// @Security BearerAuth
// @Router /pickem/pools/{poolID}/leaderboard [get]
func (h *PickHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	poolID, err := getIDFromURL(r, "poolID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "failed to identify current user")
		return
	}

	leaderboard, err := h.standingsService.GetLeaderboard(r.Context(), poolID, currentUserID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, jsonResponse{"leaderboard": leaderboard})
}

// GetWeeklyStandings godoc
// @Summary Таблица пула за неделю
// @Tags standings
// @Produce json
// @Param poolID path int true "Pool ID"
// @Param weekNumber path int true "Номер недели"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{} "Не участник пула"
// @Failure 404 {object} map[string]interface{} "Неделя не найдена"
// @Security BearerAuth
// @Router /pickem/pools/{poolID}/weeks/{weekNumber}/standings [get]
func (h *PickHandler) GetWeeklyStandings(w http.ResponseWriter, r *http.Request) {
	poolID, err := getIDFromURL(r, "poolID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	weekNumber, err := getIDFromURL(r, "weekNumber")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "failed to identify current user")
		return
	}

	view, err := h.standingsService.GetWeeklyStandings(r.Context(), poolID, currentUserID, weekNumber)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, jsonResponse{
		"week":      view.Week,
		"standings": view.Standings,
	})
}
