package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prizmbets/pickem/services"
)

type jsonResponse map[string]interface{}

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576 // 1MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case errors.As(err, &maxBytesError):
			return fmt.Errorf("body must not be larger than %d bytes", maxBytes)
		case errors.As(err, &invalidUnmarshalError):
			panic(err) // ошибка программиста: передан не указатель
		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

// writeSuccess добавляет в ответ success=true.
func writeSuccess(w http.ResponseWriter, r *http.Request, status int, data jsonResponse) {
	if data == nil {
		data = jsonResponse{}
	}
	data["success"] = true
	if err := writeJSON(w, status, data, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func errorResponse(w http.ResponseWriter, r *http.Request, status int, message interface{}) {
	env := jsonResponse{"success": false, "error": message}
	if err := writeJSON(w, status, env, nil); err != nil {
		slog.ErrorContext(r.Context(), "Error writing error JSON response", slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "Internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", chimiddleware.GetReqID(r.Context())),
		slog.Any("error", err),
	)
	message := "the server encountered a problem and could not process your request"
	errorResponse(w, r, http.StatusInternalServerError, message)
}

func badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func notFoundResponse(w http.ResponseWriter, r *http.Request, message string) {
	if message == "" {
		message = "the requested resource could not be found"
	}
	errorResponse(w, r, http.StatusNotFound, message)
}

func conflictResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusConflict, message)
}

func unauthorizedResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusUnauthorized, message)
}

func forbiddenResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusForbidden, message)
}

func badGatewayResponse(w http.ResponseWriter, r *http.Request, err error) {
	slog.WarnContext(r.Context(), "Upstream provider error", slog.Any("error", err))
	errorResponse(w, r, http.StatusBadGateway, "schedule provider is unavailable")
}

// mapServiceErrorToHTTP преобразует ошибки сервисного слоя в HTTP-ответы
func mapServiceErrorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrPoolNotFound),
		errors.Is(err, services.ErrWeekNotFound),
		errors.Is(err, services.ErrGameNotFound):
		notFoundResponse(w, r, err.Error())

	case errors.Is(err, services.ErrUserEmailConflict),
		errors.Is(err, services.ErrUserUsernameConflict):
		conflictResponse(w, r, err.Error())

	// Бизнес-ошибки пулов и пиков отдаются как 400
	case errors.Is(err, services.ErrValidationFailed),
		errors.Is(err, services.ErrPasswordTooShort),
		errors.Is(err, services.ErrPoolNameRequired),
		errors.Is(err, services.ErrPoolNameTooLong),
		errors.Is(err, services.ErrInvalidPickType),
		errors.Is(err, services.ErrInvalidTiebreaker),
		errors.Is(err, services.ErrInvalidMaxMembers),
		errors.Is(err, services.ErrMaxMembersBelowCount),
		errors.Is(err, services.ErrInvalidInviteCode),
		errors.Is(err, services.ErrDisplayNameTooLong),
		errors.Is(err, services.ErrPoolFull),
		errors.Is(err, services.ErrPoolInactive),
		errors.Is(err, services.ErrAlreadyMember),
		errors.Is(err, services.ErrNoPicksProvided),
		errors.Is(err, services.ErrLastAdminCannotLeave),
		errors.Is(err, services.ErrStorageUnavailable),
		errors.Is(err, services.ErrUnsupportedFileType):
		badRequestResponse(w, r, err)

	case errors.Is(err, services.ErrInvalidCredentials):
		unauthorizedResponse(w, r, err.Error())

	case errors.Is(err, services.ErrNotPoolMember),
		errors.Is(err, services.ErrNotPoolAdmin):
		forbiddenResponse(w, r, err.Error())

	case errors.Is(err, services.ErrScheduleProviderFailed):
		badGatewayResponse(w, r, err)

	default:
		serverErrorResponse(w, r, err)
	}
}

func getIDFromURL(r *http.Request, paramName string) (int, error) {
	idStr := chi.URLParam(r, paramName)
	if idStr == "" {
		return 0, fmt.Errorf("missing %s in URL path", paramName)
	}

	id, err := strconv.Atoi(idStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format: %q", paramName, idStr)
	}

	if id <= 0 {
		return 0, fmt.Errorf("invalid %s value: %d", paramName, id)
	}

	return id, nil
}

// getOptionalIntQuery возвращает nil, если параметр не передан.
func getOptionalIntQuery(r *http.Request, name string) (*int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return nil, fmt.Errorf("invalid %s query parameter: %q", name, raw)
	}
	return &v, nil
}
