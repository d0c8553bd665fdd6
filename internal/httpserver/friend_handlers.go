package httpserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dmserver/internal/domain"
	"dmserver/internal/service"
	"dmserver/internal/ws"
)

type sendFriendRequestRequest struct {
	Username string `json:"username"`
}

// @Summary      Send friend request
// @Tags         friends
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body sendFriendRequestRequest true "Receiver username"
// @Success      201  {object}  map[string]any
// @Failure      409  {object}  map[string]string
// @Router       /friends/requests [post]
func handleSendFriendRequest(friendSvc *service.FriendService, gateway *ws.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		var req sendFriendRequestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username is required"})
			return
		}

		receiver, err := friendSvc.Send(r.Context(), user.ID, req.Username)
		if err != nil {
			writeError(w, err)
			return
		}
		gateway.FriendRequestSent(user, receiver)
		writeJSON(w, http.StatusCreated, map[string]any{"user": receiver})
	}
}

// @Summary      Accept friend request
// @Tags         friends
// @Security     BearerAuth
// @Param        senderID  path  string  true  "Sender user id"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Router       /friends/requests/{senderID}/accept [post]
func handleAcceptFriendRequest(friendSvc *service.FriendService, gateway *ws.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		senderID := chi.URLParam(r, "senderID")
		if err := friendSvc.Accept(r.Context(), user.ID, senderID); err != nil {
			writeError(w, err)
			return
		}
		gateway.FriendRequestAccepted(senderID, user.ID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      Decline friend request
// @Tags         friends
// @Security     BearerAuth
// @Param        senderID  path  string  true  "Sender user id"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Router       /friends/requests/{senderID}/decline [post]
func handleDeclineFriendRequest(friendSvc *service.FriendService, gateway *ws.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		senderID := chi.URLParam(r, "senderID")
		if err := friendSvc.Decline(r.Context(), user.ID, senderID); err != nil {
			writeError(w, err)
			return
		}
		gateway.FriendRequestDeclined(senderID, user.ID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      Cancel friend request
// @Description  Withdraw a pending request the caller previously sent
// @Tags         friends
// @Security     BearerAuth
// @Param        receiverID  path  string  true  "Receiver user id"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Router       /friends/requests/{receiverID} [delete]
func handleCancelFriendRequest(friendSvc *service.FriendService, gateway *ws.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		receiverID := chi.URLParam(r, "receiverID")
		if err := friendSvc.Cancel(r.Context(), user.ID, receiverID); err != nil {
			writeError(w, err)
			return
		}
		gateway.FriendRequestCanceled(user.ID, receiverID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      Remove friend
// @Tags         friends
// @Security     BearerAuth
// @Param        userID  path  string  true  "Friend user id"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Router       /friends/{userID} [delete]
func handleRemoveFriend(friendSvc *service.FriendService, gateway *ws.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		otherID := chi.URLParam(r, "userID")
		if err := friendSvc.Remove(r.Context(), user.ID, otherID); err != nil {
			writeError(w, err)
			return
		}
		gateway.FriendRemoved(user.ID, otherID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      List friends
// @Tags         friends
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  domain.User
// @Router       /friends [get]
func handleListFriends(friendSvc *service.FriendService) http.HandlerFunc {
	return listUsersHandler(friendSvc.ListFriends)
}

// @Summary      List sent friend requests
// @Tags         friends
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  domain.User
// @Router       /friends/requests/sent [get]
func handleListSentRequests(friendSvc *service.FriendService) http.HandlerFunc {
	return listUsersHandler(friendSvc.ListSentRequests)
}

// @Summary      List received friend requests
// @Tags         friends
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  domain.User
// @Router       /friends/requests/received [get]
func handleListReceivedRequests(friendSvc *service.FriendService) http.HandlerFunc {
	return listUsersHandler(friendSvc.ListReceivedRequests)
}

func listUsersHandler(list func(ctx context.Context, userID string) ([]*domain.User, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		users, err := list(r.Context(), user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		if users == nil {
			users = []*domain.User{}
		}
		writeJSON(w, http.StatusOK, users)
	}
}
