package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"lendingapp/services"
	"lendingapp/utils"

	"github.com/gorilla/mux"
)

// errorResponse - тело ответа с ошибкой
type errorResponse struct {
	Error               string                    `json:"error"`
	Violations          []services.FieldViolation `json:"violations,omitempty"`
	MissingRequirements []string                  `json:"missing_requirements,omitempty"`
	CurrentStatus       string                    `json:"current_status,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		utils.LogError("Ошибка записи ответа: %v", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError переводит типизированные ошибки сервисов в HTTP статусы
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		validationErr  *services.ValidationError
		ineligibleErr  *services.IneligibleError
		transitionErr  *services.IllegalTransitionError
		notFoundErr    *services.NotFoundError
		conflictErr    *services.ConflictError
		unavailableErr *services.BackendUnavailableError
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Validation failed", Violations: validationErr.Violations})
	case errors.As(err, &ineligibleErr):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "Not eligible to apply", MissingRequirements: ineligibleErr.MissingRequirements})
	case errors.As(err, &transitionErr):
		writeJSON(w, http.StatusConflict, errorResponse{Error: transitionErr.Error(), CurrentStatus: string(transitionErr.From)})
	case errors.As(err, &notFoundErr):
		writeMessage(w, http.StatusNotFound, notFoundErr.Error())
	case errors.As(err, &conflictErr):
		writeMessage(w, http.StatusConflict, conflictErr.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.As(err, &unavailableErr):
		utils.LogError("Хранилище недоступно: %v", err)
		writeMessage(w, http.StatusServiceUnavailable, "Service temporarily unavailable, please try again")
	default:
		utils.LogError("Необработанная ошибка: %v", err)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeJSON читает тело запроса, не больше 1 МиБ
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst)
}

// pathID читает числовой параметр маршрута
func pathID(r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)[name], 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// queryInt читает необязательный числовой параметр запроса
func queryInt(r *http.Request, name string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}
