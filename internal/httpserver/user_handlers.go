package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dmserver/internal/service"
)

const maxAvatarBytes = 10 << 20

// @Summary      Search users
// @Description  Search users by username prefix
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        q      query  string  false  "Username prefix"
// @Param        limit  query  int     false  "Max results"
// @Success      200  {array}  domain.User
// @Router       /users [get]
func handleSearchUsers(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		users, err := userSvc.Search(r.Context(), r.URL.Query().Get("q"), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, users)
	}
}

// @Summary      Get user
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        userID  path  string  true  "User id"
// @Success      200  {object}  domain.User
// @Failure      404  {object}  map[string]string
// @Router       /users/{userID} [get]
func handleGetUser(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := userSvc.GetByID(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

type updateUserRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

// @Summary      Update own profile
// @Tags         users
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body updateUserRequest true "Fields to update"
// @Success      200  {object}  domain.User
// @Router       /users/me [patch]
func handleUpdateMe(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		var req updateUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		updated, err := userSvc.Update(r.Context(), user.ID, service.UpdateUserInput{
			Username: req.Username,
			Password: req.Password,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

// @Summary      Upload avatar
// @Description  Upload a new avatar image (multipart field "file")
// @Tags         users
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Success      200  {object}  domain.User
// @Router       /users/me/avatar [post]
func handleUploadAvatar(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to parse multipart form"})
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing file"})
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxAvatarBytes))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read file"})
			return
		}

		updated, err := userSvc.Update(r.Context(), user.ID, service.UpdateUserInput{Avatar: data})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}
