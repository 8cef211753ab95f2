package handlers

import (
	"net/http"

	"github.com/prizmbets/pickem/services"
)

type NFLHandler struct {
	scheduleService services.ScheduleService
}

func NewNFLHandler(ss services.ScheduleService) *NFLHandler {
	return &NFLHandler{scheduleService: ss}
}

// GetCurrentWeek godoc
// @Summary Текущая неделя NFL и ее матчи
// @Tags nfl
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{} "Расписание еще не загружено"
// @Security BearerAuth
// @Router /pickem/nfl/weeks/current [get]
func (h *NFLHandler) GetCurrentWeek(w http.ResponseWriter, r *http.Request) {
	wg, err := h.scheduleService.GetCurrentWeek(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, jsonResponse{
		"week":            wg.Week,
		"games":           wg.Games,
		"deadline_passed": wg.DeadlinePassed,
	})
}

// GetWeekGames godoc
// @Summary Матчи недели
// @Tags nfl
// @Produce json
// @Param weekNumber path int true "Номер недели"
// @Param season query int false "Сезон (по умолчанию текущий)"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{} "Неделя не найдена"
// @Security BearerAuth
// @Router /pickem/nfl/weeks/{weekNumber}/games [get]
func (h *NFLHandler) GetWeekGames(w http.ResponseWriter, r *http.Request) {
	weekNumber, err := getIDFromURL(r, "weekNumber")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	season, err := getOptionalIntQuery(r, "season")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	wg, err := h.scheduleService.GetWeekGames(r.Context(), season, weekNumber)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, jsonResponse{
		"week":            wg.Week,
		"games":           wg.Games,
		"deadline_passed": wg.DeadlinePassed,
	})
}
