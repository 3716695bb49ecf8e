package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/KishorKumarParoi/KTube-backend/internal/config"
	authsvc "github.com/KishorKumarParoi/KTube-backend/internal/services/auth"
	mediasvc "github.com/KishorKumarParoi/KTube-backend/internal/services/media"
	userssvc "github.com/KishorKumarParoi/KTube-backend/internal/services/users"
	"github.com/KishorKumarParoi/KTube-backend/internal/transport/http/handlers"
)

type Dependencies struct {
	AuthService  *authsvc.Service
	UserService  *userssvc.Service
	MediaService *mediasvc.Service
	Logger       *zap.Logger
	Config       config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	authHandler := handlers.NewAuthHandler(deps.AuthService, handlers.CookieConfig{
		Secure: deps.Config.Auth.SecureCookies,
	})
	userHandler := handlers.NewUserHandler(deps.UserService, deps.MediaService)
	authMW := AuthMiddleware(deps.AuthService, deps.Logger)

	r.Get("/healthz", healthHandler.Get)

	r.Route("/api/v1/users", func(r chi.Router) {
		r.Post("/register", userHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/refresh-token", authHandler.Refresh)

		r.With(authMW).Post("/logout", authHandler.Logout)
		r.With(authMW).Post("/change-password", authHandler.ChangePassword)
		r.With(authMW).Get("/current-user", userHandler.Me)
		r.With(authMW).Patch("/update-account", userHandler.UpdateAccount)
		r.With(authMW).Post("/avatar", userHandler.UpdateAvatar)
		r.With(authMW).Post("/cover-image", userHandler.UpdateCoverImage)
	})
}
