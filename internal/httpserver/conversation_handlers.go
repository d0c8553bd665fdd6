package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dmserver/internal/service"
	"dmserver/internal/ws"
)

type createConversationRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// @Summary      Create or reopen a conversation
// @Description  Returns the unique conversation with the given user, creating it on first contact
// @Tags         conversations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body createConversationRequest true "Counterpart, by id or username"
// @Success      200  {object}  domain.Conversation
// @Success      201  {object}  domain.Conversation
// @Failure      404  {object}  map[string]string
// @Router       /conversations [post]
func handleCreateConversation(convSvc *service.ConversationService, userSvc *service.UserService, gateway *ws.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		var req createConversationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		otherID := req.UserID
		if otherID == "" && req.Username != "" {
			other, err := userSvc.GetByUsername(r.Context(), req.Username)
			if err != nil {
				writeError(w, err)
				return
			}
			otherID = other.ID
		}

		res, err := convSvc.FindOrCreate(r.Context(), user.ID, otherID)
		if err != nil {
			writeError(w, err)
			return
		}

		status := http.StatusOK
		if res.Created {
			status = http.StatusCreated
			gateway.ConversationCreated(res.Conversation)
		}
		writeJSON(w, status, res.Conversation)
	}
}

// @Summary      List conversations
// @Description  The caller's open conversations in sidebar order with unread state
// @Tags         conversations
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  service.UserConversation
// @Router       /conversations [get]
func handleListConversations(convSvc *service.ConversationService, msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		items, err := convSvc.ListForUser(r.Context(), user.ID)
		if err != nil {
			writeError(w, err)
			return
		}

		// The preview message goes out decrypted.
		type sidebarEntry struct {
			*service.UserConversation
			LastMessage *service.MessageResponse `json:"last_message,omitempty"`
		}
		res := make([]sidebarEntry, 0, len(items))
		for _, item := range items {
			entry := sidebarEntry{UserConversation: item}
			if item.LastMessage != nil {
				dto, err := msgSvc.ToResponse(r.Context(), item.LastMessage)
				if err != nil {
					writeError(w, err)
					return
				}
				entry.LastMessage = dto
			}
			res = append(res, entry)
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// @Summary      Get conversation
// @Tags         conversations
// @Security     BearerAuth
// @Produce      json
// @Param        conversationID  path  string  true  "Conversation id"
// @Success      200  {object}  domain.Conversation
// @Failure      404  {object}  map[string]string
// @Router       /conversations/{conversationID} [get]
func handleGetConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		conv, err := convSvc.Get(r.Context(), chi.URLParam(r, "conversationID"), user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

// @Summary      Close conversation
// @Description  Hide the conversation from the caller's sidebar. Idempotent.
// @Tags         conversations
// @Security     BearerAuth
// @Produce      json
// @Param        conversationID  path  string  true  "Conversation id"
// @Success      200  {object}  domain.Conversation
// @Router       /conversations/{conversationID}/close [post]
func handleCloseConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		conv, err := convSvc.Close(r.Context(), chi.URLParam(r, "conversationID"), user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

// @Summary      Delete conversation
// @Description  Delete the conversation and all of its messages, for both participants
// @Tags         conversations
// @Security     BearerAuth
// @Produce      json
// @Param        conversationID  path  string  true  "Conversation id"
// @Success      200  {object}  domain.Conversation
// @Router       /conversations/{conversationID} [delete]
func handleDeleteConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		conv, err := convSvc.Delete(r.Context(), chi.URLParam(r, "conversationID"), user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

// @Summary      Mark conversation read
// @Description  Clear the caller's unread markers; returns the ids that transitioned
// @Tags         conversations
// @Security     BearerAuth
// @Produce      json
// @Param        conversationID  path  string  true  "Conversation id"
// @Success      200  {object}  map[string][]string
// @Router       /conversations/{conversationID}/read [post]
func handleMarkConversationRead(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		ids, err := msgSvc.MarkRead(r.Context(), chi.URLParam(r, "conversationID"), user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		if ids == nil {
			ids = []string{}
		}
		writeJSON(w, http.StatusOK, map[string][]string{"message_ids": ids})
	}
}
