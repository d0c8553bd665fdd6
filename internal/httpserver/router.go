package httpserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"dmserver/internal/config"
	"dmserver/internal/domain"
	"dmserver/internal/media"
	"dmserver/internal/security"
	"dmserver/internal/service"
	"dmserver/internal/ws"
)

// Repositories bundles the store implementations picked in main (sqlite or
// postgres, both satisfy the same interfaces).
type Repositories struct {
	Users         domain.UserRepository
	Conversations domain.ConversationRepository
	Messages      domain.MessageRepository
	Friends       domain.FriendRepository
}

// NewRouter constructs the main HTTP router and wires routes, services, and
// middleware.
func NewRouter(
	cfg *config.Config,
	repos Repositories,
	gateway *ws.Gateway,
	tokenSvc *security.TokenService,
	passwordHasher *security.PasswordHasher,
	encryptor *security.Encryptor,
	avatars *media.AvatarStore,
) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Services
	authSvc := service.NewAuthService(repos.Users, tokenSvc, passwordHasher)
	userSvc := service.NewUserService(repos.Users, avatars, passwordHasher)
	convSvc := service.NewConversationService(repos.Conversations, repos.Messages, repos.Users)
	msgSvc := service.NewMessageService(repos.Conversations, repos.Messages, repos.Users, encryptor, cfg.MessagePageSize)
	friendSvc := service.NewFriendService(repos.Friends, repos.Users)
	previews := newPreviewRenderer()

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": cfg.AppName + " API",
			"version": "1.0.0",
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Auth routes (no auth required)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handleRegister(authSvc))
			r.Post("/login", handleLogin(authSvc))
			r.Post("/refresh", handleRefresh(authSvc))
		})

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(tokenSvc, repos.Users))

			r.Post("/auth/logout", handleLogout(authSvc))
			r.Get("/auth/me", handleMe())

			r.Route("/users", func(r chi.Router) {
				r.Get("/", handleSearchUsers(userSvc))
				r.Patch("/me", handleUpdateMe(userSvc))
				r.Post("/me/avatar", handleUploadAvatar(userSvc))
				r.Get("/{userID}", handleGetUser(userSvc))
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Post("/", handleCreateConversation(convSvc, userSvc, gateway))
				r.Get("/", handleListConversations(convSvc, msgSvc))
				r.Get("/{conversationID}", handleGetConversation(convSvc))
				r.Delete("/{conversationID}", handleDeleteConversation(convSvc))
				r.Post("/{conversationID}/close", handleCloseConversation(convSvc))
				r.Post("/{conversationID}/read", handleMarkConversationRead(msgSvc))
				r.Get("/{conversationID}/messages", handleListMessages(msgSvc))
				r.Post("/{conversationID}/messages", handleCreateMessage(msgSvc, gateway))
			})

			r.Route("/messages", func(r chi.Router) {
				r.Patch("/{messageID}", handleUpdateMessage(msgSvc, convSvc, gateway))
				r.Delete("/{messageID}", handleDeleteMessage(msgSvc, convSvc, gateway))
			})

			r.Route("/friends", func(r chi.Router) {
				r.Get("/", handleListFriends(friendSvc))
				r.Post("/requests", handleSendFriendRequest(friendSvc, gateway))
				r.Get("/requests/sent", handleListSentRequests(friendSvc))
				r.Get("/requests/received", handleListReceivedRequests(friendSvc))
				r.Post("/requests/{senderID}/accept", handleAcceptFriendRequest(friendSvc, gateway))
				r.Post("/requests/{senderID}/decline", handleDeclineFriendRequest(friendSvc, gateway))
				r.Delete("/requests/{receiverID}", handleCancelFriendRequest(friendSvc, gateway))
				r.Delete("/{userID}", handleRemoveFriend(friendSvc, gateway))
			})

			r.Get("/preview", handleLinkPreview(previews))

			r.Mount("/uploads", UploadRoutes(avatars))
		})
	})

	// WebSocket endpoint
	r.Get("/ws", gateway.Handler())

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps domain sentinel errors to HTTP statuses. Anything
// unrecognized is a 500 whose detail stays in the log.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("http: internal error: %v", err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
