package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prizmbets/pickem/services"
)

const syncDateLayout = "2006-01-02"

type AdminHandler struct {
	scheduleService  services.ScheduleService
	standingsService services.StandingsService
}

func NewAdminHandler(ss services.ScheduleService, st services.StandingsService) *AdminHandler {
	return &AdminHandler{
		scheduleService:  ss,
		standingsService: st,
	}
}

func parseSyncDate(r *http.Request, name string) (time.Time, bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(syncDateLayout, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid %s date %q, expected YYYY-MM-DD", name, raw)
	}
	return t, true, nil
}

// SyncSchedule godoc
// @Summary Синхронизация расписания NFL
// @Description Без параметров синхронизирует окно вокруг текущей даты.
// @Tags admin
// @Produce json
// @Param from query string false "Начало окна, YYYY-MM-DD"
// @Param to query string false "Конец окна, YYYY-MM-DD"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{} "Неверный диапазон"
// @Failure 502 {object} map[string]interface{} "Провайдер расписания недоступен"
// @Security BearerAuth
// @Router /pickem/admin/sync [post]
func (h *AdminHandler) SyncSchedule(w http.ResponseWriter, r *http.Request) {
	from, hasFrom, err := parseSyncDate(r, "from")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	to, hasTo, err := parseSyncDate(r, "to")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if hasFrom != hasTo {
		badRequestResponse(w, r, errors.New("from and to must be provided together"))
		return
	}

	var result *services.SyncResult
	if hasFrom {
		if to.Before(from) {
			badRequestResponse(w, r, errors.New("to must not be before from"))
			return
		}
		result, err = h.scheduleService.SyncSchedule(r.Context(), from, to.Add(24*time.Hour-time.Second))
	} else {
		result, err = h.scheduleService.SyncUpcoming(r.Context())
	}
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, jsonResponse{"result": result})
}

// FinalizeWeeks godoc
// @Summary Завершить прошедшие недели и пересчитать таблицы
// @Tags admin
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /pickem/admin/finalize [post]
func (h *AdminHandler) FinalizeWeeks(w http.ResponseWriter, r *http.Request) {
	result, err := h.scheduleService.FinalizeCompletedWeeks(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeSuccess(w, r, http.StatusOK, jsonResponse{"result": result})
}

// RecalculateWeek godoc
// @Summary Пересчитать недельную таблицу пула
// @Tags admin
// @Produce json
// @Param poolID path int true "Pool ID"
// @Param weekID path int true "Week ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{} "Пул или неделя не найдены"
// @Security BearerAuth
// @Router /pickem/admin/pools/{poolID}/weeks/{weekID}/recalculate [post]
func (h *AdminHandler) RecalculateWeek(w http.ResponseWriter, r *http.Request) {
	poolID, err := getIDFromURL(r, "poolID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	weekID, err := getIDFromURL(r, "weekID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	standings, err := h.standingsService.RecalculateWeek(r.Context(), poolID, weekID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeSuccess(w, r, http.StatusOK, jsonResponse{"standings": standings})
}
