package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/prizmbets/pickem/models"
	"github.com/prizmbets/pickem/services"
)

const tokenTTL = 24 * time.Hour

type AuthHandler struct {
	authService services.AuthService
	jwtSecret   []byte
	now         func() time.Time
}

func NewAuthHandler(authService services.AuthService, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		jwtSecret:   []byte(jwtSecret),
		now:         time.Now,
	}
}

func (h *AuthHandler) issueToken(user *models.User) (string, time.Time, error) {
	now := h.now()
	expiresAt := now.Add(tokenTTL)
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"role":    string(user.Role),
		"name":    user.Username,
		"exp":     expiresAt.Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(h.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, expiresAt, nil
}

// Register godoc
// @Summary Регистрация пользователя
// @Tags auth
// @Accept json
// @Produce json
// @Param input body services.RegisterInput true "Данные пользователя"
// @Success 201 {object} map[string]interface{} "Пользователь и токен"
// @Failure 400 {object} map[string]interface{} "Ошибка валидации"
// @Failure 409 {object} map[string]interface{} "Email или username заняты"
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input services.RegisterInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if input.Email == "" || input.Password == "" || input.Username == "" {
		badRequestResponse(w, r, errors.New("email, username and password are required"))
		return
	}

	user, err := h.authService.Register(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	token, expiresAt, err := h.issueToken(user)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusCreated, jsonResponse{
		"user":       user,
		"token":      token,
		"expires_at": expiresAt,
	})
}

// Login godoc
// @Summary Вход и выдача JWT
// @Tags auth
// @Accept json
// @Produce json
// @Param input body services.LoginInput true "Email и пароль"
// @Success 200 {object} map[string]interface{} "Токен"
// @Failure 400 {object} map[string]interface{} "Ошибка валидации"
// @Failure 401 {object} map[string]interface{} "Неверные учетные данные"
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input services.LoginInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if input.Email == "" || input.Password == "" {
		badRequestResponse(w, r, errors.New("email and password are required"))
		return
	}

	user, err := h.authService.Login(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	token, expiresAt, err := h.issueToken(user)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, jsonResponse{
		"user":       user,
		"token":      token,
		"expires_at": expiresAt,
	})
}
