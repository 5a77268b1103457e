package controllers

import (
	"net/http"

	"lendingapp/middleware"
	"lendingapp/services"
)

type AuthController struct {
	users *services.UserService
}

func NewAuthController(users *services.UserService) *AuthController {
	return &AuthController{users: users}
}

// SignUp регистрирует заемщика и сразу выдает токен
func (c *AuthController) SignUp(w http.ResponseWriter, r *http.Request) {
	var req services.SignUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := c.users.SignUp(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// SignIn обрабатывает вход пользователя
func (c *AuthController) SignIn(w http.ResponseWriter, r *http.Request) {
	var req services.SignInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := c.users.SignIn(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// SignOut завершает текущую сессию
func (c *AuthController) SignOut(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	c.users.SignOut(claims)
	w.WriteHeader(http.StatusNoContent)
}

// Me возвращает пользователя текущей сессии
func (c *AuthController) Me(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := middleware.GetUserFromContext(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := c.users.Me(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
