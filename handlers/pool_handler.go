package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prizmbets/pickem/middleware"
	"github.com/prizmbets/pickem/services"
)

const maxLogoUploadBytes = 5 << 20

type PoolHandler struct {
	poolService services.PoolService
}

func NewPoolHandler(ps services.PoolService) *PoolHandler {
	return &PoolHandler{
		poolService: ps,
	}
}

// CreatePool godoc
// @Summary Создать пул
// @Tags pools
// @Accept json
// @Produce json
// @Param input body services.CreatePoolInput true "Параметры пула"
// @Success 201 {object} map[string]interface{} "Пул с кодом приглашения"
// @Failure 400 {object} map[string]interface{} "Ошибка валидации"
// @Failure 401 {object} map[string]interface{} "Неавторизован"
// @Security BearerAuth
// @Router /pickem/pools [post]
func (h *PoolHandler) CreatePool(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "failed to identify current user")
		return
	}

	var input services.CreatePoolInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	input.CreatorID = currentUserID

	pool, err := h.poolService.CreatePool(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusCreated, jsonResponse{
		"pool":        pool,
		"invite_code": pool.InviteCode,
	})
}

// JoinPool godoc
// @Summary Вступить в пул по коду приглашения
// @Tags pools
// @Accept json
// @Produce json
// @Param input body services.JoinPoolInput true "Код приглашения и отображаемое имя"
// @Success 200 {object} map[string]interface{} "Пул и членство"
// @Failure 400 {object} map[string]interface{} "Неверный код / пул заполнен / неактивен / уже участник"
// @Failure 401 {object} map[string]interface{} "Неавторизован"
// @Security BearerAuth
// @Router /pickem/pools/join [post]
func (h *PoolHandler) JoinPool(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "failed to identify current user")
		return
	}

	var input services.JoinPoolInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.InviteCode == "" {
		badRequestResponse(w, r, errors.New("invite_code is required"))
		return
	}
	input.UserID = currentUserID

	result, err := h.poolService.JoinPool(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, jsonResponse{
		"pool":       result.Pool,
		"membership": result.Membership,
		"rejoined":   result.Rejoined,
	})
}

// ListPools godoc
// @Summary Пулы текущего пользователя
// @Tags pools
// @Produce json
// @Success 200 {object} map[string]interface{} "Список пулов"
// @Security BearerAuth
// @Router /pickem/pools [get]
func (h *PoolHandler) ListPools(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "failed to identify current user")
		return
	}

	pools, err := h.poolService.ListUserPools(r.Context(), currentUserID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, jsonResponse{"pools": pools})
}

// GetPool godoc
// @Summary Детали пула
// @Tags pools
// @Produce json
// @Param poolID path int true "Pool ID"
// @Success 200 {object} map[string]interface{} "Пул, участники и текущая неделя"
// @Failure 403 {object} map[string]interface{} "Не участник пула"
// @Failure 404 {object} map[string]interface{} "Пул не найден"
// @Security BearerAuth
// @Router /pickem/pools/{poolID} [get]
func (h *PoolHandler) GetPool(w http.ResponseWriter, r *http.Request) {
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

	detail, err := h.poolService.GetPoolDetail(r.Context(), poolID, currentUserID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, jsonResponse{
		"pool":         detail.Pool,
		"members":      detail.Members,
		"current_week": detail.CurrentWeek,
		"is_admin":     detail.IsAdmin,
	})
}

// UpdatePool godoc
// @Summary Изменить настройки пула (только админ)
// @Tags pools
// @Accept json
// @Produce json
// @Param poolID path int true "Pool ID"
// @Param input body services.UpdatePoolInput true "Изменяемые поля"
// @Success 200 {object} map[string]interface{} "Обновленный пул"
// @Failure 400 {object} map[string]interface{} "Ошибка валидации"
// @Failure 403 {object} map[string]interface{} "Нет прав"
// @Security BearerAuth
// @Router /pickem/pools/{poolID} [patch]
func (h *PoolHandler) UpdatePool(w http.ResponseWriter, r *http.Request) {
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

	var input services.UpdatePoolInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Name == nil && input.Description == nil && input.Settings == nil && input.MaxMembers == nil {
		badRequestResponse(w, r, errors.New("no fields provided for update"))
		return
	}

	pool, err := h.poolService.UpdateSettings(r.Context(), poolID, currentUserID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, jsonResponse{"pool": pool})
}

// LeavePool godoc
// @Summary Покинуть пул
// @Tags pools
// @Produce json
// @Param poolID path int true "Pool ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{} "Последний админ не может выйти"
// @Failure 403 {object} map[string]interface{} "Не участник пула"
// @Security BearerAuth
// @Router /pickem/pools/{poolID}/leave [post]
func (h *PoolHandler) LeavePool(w http.ResponseWriter, r *http.Request) {
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

	if err := h.poolService.LeavePool(r.Context(), poolID, currentUserID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, jsonResponse{"message": "left pool"})
}

// DeactivatePool godoc
// @Summary Деактивировать пул (только админ)
// @Tags pools
// @Produce json
// @Param poolID path int true "Pool ID"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{} "Нет прав"
// @Security BearerAuth
// @Router /pickem/pools/{poolID} [delete]
func (h *PoolHandler) DeactivatePool(w http.ResponseWriter, r *http.Request) {
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

	if err := h.poolService.DeactivatePool(r.Context(), poolID, currentUserID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, jsonResponse{"message": "pool deactivated"})
}

// RegenerateInviteCode godoc
// @Summary Новый код приглашения (только админ)
// @Tags pools
// @Produce json
// @Param poolID path int true "Pool ID"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{} "Нет прав"
// @Security BearerAuth
// @Router /pickem/pools/{poolID}/invite-code [post]
func (h *PoolHandler) RegenerateInviteCode(w http.ResponseWriter, r *http.Request) {
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

	pool, err := h.poolService.RegenerateInviteCode(r.Context(), poolID, currentUserID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, jsonResponse{"pool": pool, "invite_code": pool.InviteCode})
}

// UploadLogo godoc
// @Summary Загрузить логотип пула (только админ)
// @Tags pools
// @Accept multipart/form-data
// @Produce json
// @Param poolID path int true "Pool ID"
// @Param logo formData file true "Изображение"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{} "Хранилище не настроено / неверный файл"
// @Failure 403 {object} map[string]interface{} "Нет прав"
// @Security BearerAuth
// @Router /pickem/pools/{poolID}/logo [put]
func (h *PoolHandler) UploadLogo(w http.ResponseWriter, r *http.Request) {
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

	r.Body = http.MaxBytesReader(w, r.Body, maxLogoUploadBytes)
	if err := r.ParseMultipartForm(maxLogoUploadBytes); err != nil {
		badRequestResponse(w, r, fmt.Errorf("failed to parse multipart form: %w", err))
		return
	}

	file, header, err := r.FormFile("logo")
	if err != nil {
		badRequestResponse(w, r, fmt.Errorf("failed to get logo file from form: %w", err))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		badRequestResponse(w, r, errors.New("content-type header is required for logo"))
		return
	}

	pool, err := h.poolService.UploadLogo(r.Context(), poolID, currentUserID, file, contentType)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, jsonResponse{"pool": pool})
}
