package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/auth"
	"github.com/vovakirdan/wirechat-dm/internal/config"
	"github.com/vovakirdan/wirechat-dm/internal/core"
	"github.com/vovakirdan/wirechat-dm/internal/service/accounts"
	"github.com/vovakirdan/wirechat-dm/internal/service/chats"
	"github.com/vovakirdan/wirechat-dm/internal/service/friends"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// Services are the collaborators the HTTP surface dispatches to.
type Services struct {
	Core     *core.Core
	Auth     *auth.Service
	Friends  *friends.Service
	Accounts *accounts.Service
	Chats    *chats.Service
	Store    store.Store
}

// NewServer builds an HTTP server with the REST API and the websocket endpoint.
func NewServer(svc Services, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/ws", gin.WrapH(NewWSHandler(svc.Core, svc.Auth, WSOptions{
		InboundRateLimit: cfg.WS.InboundRateLimit,
		PingInterval:     cfg.WS.PingInterval,
	}, logger)))

	apiHandlers := NewAPIHandlers(svc.Auth, logger)
	friendsHandlers := NewFriendsHandlers(svc.Friends, svc.Store, logger)
	chatsHandlers := NewChatsHandlers(svc.Chats, svc.Store, logger)
	accountHandlers := NewAccountHandlers(svc.Accounts, logger)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	authed := api.Group("", AuthMiddleware(svc.Auth, logger))
	authed.POST("/logout", apiHandlers.Logout)
	authed.DELETE("/account", accountHandlers.DeleteAccount)

	authed.GET("/friends", friendsHandlers.Overview)
	authed.POST("/friends/requests", friendsHandlers.SendRequest)
	authed.POST("/friends/requests/:uuid/accept", friendsHandlers.AcceptRequest)
	authed.POST("/friends/requests/:uuid/reject", friendsHandlers.RejectRequest)
	authed.DELETE("/friends/requests/:uuid", friendsHandlers.CancelRequest)
	authed.DELETE("/friends/:uuid", friendsHandlers.RemoveFriend)

	authed.GET("/chats", chatsHandlers.RecentChats)
	authed.GET("/chats/:uuid/messages", chatsHandlers.History)
	authed.POST("/chats/:uuid/messages", chatsHandlers.Send)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
