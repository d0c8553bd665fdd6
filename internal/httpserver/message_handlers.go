package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"dmserver/internal/service"
	"dmserver/internal/ws"
)

type createMessageRequest struct {
	Content   string  `json:"content"`
	ReplyToID *string `json:"reply_to_id"`
}

// @Summary      Send message
// @Tags         messages
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        conversationID  path  string  true  "Conversation id"
// @Param        input body createMessageRequest true "Message input"
// @Success      201  {object}  service.MessageResponse
// @Failure      404  {object}  map[string]string
// @Router       /conversations/{conversationID}/messages [post]
func handleCreateMessage(msgSvc *service.MessageService, gateway *ws.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		var req createMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		msg, conv, err := msgSvc.Create(r.Context(), service.MessageCreateInput{
			ConversationID: chi.URLParam(r, "conversationID"),
			Content:        req.Content,
			ReplyToID:      req.ReplyToID,
		}, user.ID)
		if err != nil {
			writeError(w, err)
			return
		}

		resp, err := msgSvc.ToResponse(r.Context(), msg)
		if err != nil {
			writeError(w, err)
			return
		}
		gateway.MessageCreated(conv, resp)
		writeJSON(w, http.StatusCreated, resp)
	}
}

// @Summary      List messages
// @Description  Messages in chronological order, paginated backwards from the optional cursor
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        conversationID  path   string  true   "Conversation id"
// @Param        before          query  string  false  "RFC3339 cursor"
// @Param        limit           query  int     false  "Page size"
// @Success      200  {array}  service.MessageResponse
// @Router       /conversations/{conversationID}/messages [get]
func handleListMessages(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)

		var before *time.Time
		if raw := r.URL.Query().Get("before"); raw != "" {
			t, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "before must be an RFC3339 timestamp"})
				return
			}
			before = &t
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		msgs, err := msgSvc.List(r.Context(), chi.URLParam(r, "conversationID"), user.ID, before, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		res, err := msgSvc.ToResponses(r.Context(), msgs)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type updateMessageRequest struct {
	Content string `json:"content"`
}

// @Summary      Edit message
// @Description  Author-only; the first edit permanently marks the message as modified
// @Tags         messages
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        messageID  path  string  true  "Message id"
// @Param        input body updateMessageRequest true "New content"
// @Success      200  {object}  service.MessageResponse
// @Failure      403  {object}  map[string]string
// @Router       /messages/{messageID} [patch]
func handleUpdateMessage(msgSvc *service.MessageService, convSvc *service.ConversationService, gateway *ws.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		var req updateMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		msg, err := msgSvc.Update(r.Context(), chi.URLParam(r, "messageID"), user.ID, req.Content)
		if err != nil {
			writeError(w, err)
			return
		}

		resp, err := msgSvc.ToResponse(r.Context(), msg)
		if err != nil {
			writeError(w, err)
			return
		}
		if conv, err := convSvc.Get(r.Context(), msg.ConversationID, user.ID); err == nil {
			gateway.MessageUpdated(conv, resp)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// @Summary      Delete message
// @Description  Author-only; replies to the message are deleted with it
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        messageID  path  string  true  "Message id"
// @Success      200  {object}  map[string]any
// @Failure      403  {object}  map[string]string
// @Router       /messages/{messageID} [delete]
func handleDeleteMessage(msgSvc *service.MessageService, convSvc *service.ConversationService, gateway *ws.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		res, err := msgSvc.Delete(r.Context(), chi.URLParam(r, "messageID"), user.ID)
		if err != nil {
			writeError(w, err)
			return
		}

		var newLast *service.MessageResponse
		if res.NewLastMessage != nil {
			newLast, err = msgSvc.ToResponse(r.Context(), res.NewLastMessage)
			if err != nil {
				writeError(w, err)
				return
			}
		}
		if conv, err := convSvc.Get(r.Context(), res.ConversationID, user.ID); err == nil {
			gateway.MessageDeleted(conv, res.MessageID, newLast)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message_id":       res.MessageID,
			"conversation_id":  res.ConversationID,
			"new_last_message": newLast,
		})
	}
}
