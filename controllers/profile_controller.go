package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"lendingapp/middleware"
	"lendingapp/models"
	"lendingapp/services"
)

// ProfileController обрабатывает анкету заемщика
type ProfileController struct {
	profiles *services.ProfileService
	maxBytes int64
}

func NewProfileController(profiles *services.ProfileService, maxUploadBytes int64) *ProfileController {
	if maxUploadBytes <= 0 {
		maxUploadBytes = services.DefaultMaxDocumentBytes
	}
	return &ProfileController{profiles: profiles, maxBytes: maxUploadBytes}
}

type eligibilityResponse struct {
	services.Eligibility
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// GetProfile возвращает анкету текущего пользователя
func (c *ProfileController) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := middleware.GetUserFromContext(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	profile, err := c.profiles.Get(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// UpdateStep сохраняет один шаг анкеты
func (c *ProfileController) UpdateStep(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := middleware.GetUserFromContext(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	step, ok := pathID(r, "step")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid step")
		return
	}

	var req services.ProfileStepRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	profile, err := c.profiles.UpdateStep(r.Context(), userID, int(step), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// UploadDocument принимает скан документа в поле формы "document"
func (c *ProfileController) UploadDocument(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := middleware.GetUserFromContext(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	// Запас на заголовки multipart
	r.Body = http.MaxBytesReader(w, r.Body, c.maxBytes+1<<20)
	if err := r.ParseMultipartForm(c.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeServiceError(w, fieldError("file", "max_size", "file must not exceed "+strconv.FormatInt(c.maxBytes, 10)+" bytes"))
			return
		}
		writeMessage(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("document")
	if err != nil {
		writeServiceError(w, fieldError("file", "required", "document file is required"))
		return
	}
	defer file.Close()

	profile, err := c.profiles.UploadIDDocument(r.Context(), userID, header.Filename, file)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// Eligibility показывает, какие требования осталось выполнить до подачи заявки
func (c *ProfileController) Eligibility(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := middleware.GetUserFromContext(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	profile, err := c.profiles.Get(r.Context(), userID)
	var notFound *services.NotFoundError
	if err != nil && !errors.As(err, &notFound) {
		writeServiceError(w, err)
		return
	}
	if profile == nil {
		profile = &models.Profile{}
	}

	eligibility := services.EvaluateEligibility(profile)
	writeJSON(w, http.StatusOK, eligibilityResponse{
		Eligibility: eligibility,
		Completed:   eligibility.Completed(),
		Total:       len(eligibility.Requirements),
	})
}
