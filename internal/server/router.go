package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/raagalabs/swarasheet/backend/internal/auth"
	"github.com/raagalabs/swarasheet/backend/internal/collections"
	"github.com/raagalabs/swarasheet/backend/internal/songs"
	"github.com/raagalabs/swarasheet/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const identityContextKey = "swarasheet_identity"

var (
	errMissingTokenManager       = errors.New("token manager dependency required")
	errMissingSongService        = errors.New("song service dependency required")
	errMissingUserService        = errors.New("user service dependency required")
	errMissingCollectionService  = errors.New("collection service dependency required")
	errMissingDatabaseDependency = errors.New("database dependency required")
	errInvalidAuthorization      = errors.New("authorization header missing or invalid")
)

// TokenManager issues and verifies bearer tokens.
type TokenManager interface {
	Issue(userID string, isAdmin bool) (string, int64, error)
	Validate(token string) (auth.Identity, error)
}

// Dependencies wires the HTTP surface to the service layer.
type Dependencies struct {
	Tokens      TokenManager
	Songs       *songs.Service
	Users       *users.Service
	Collections *collections.Service
	Database    *gorm.DB
	Logger      *zap.Logger
	Metrics     *Metrics
}

// NewHTTPHandler builds the full REST surface.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tokens == nil {
		return nil, errMissingTokenManager
	}
	if deps.Songs == nil {
		return nil, errMissingSongService
	}
	if deps.Users == nil {
		return nil, errMissingUserService
	}
	if deps.Collections == nil {
		return nil, errMissingCollectionService
	}
	if deps.Database == nil {
		return nil, errMissingDatabaseDependency
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.middleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:      deps.Tokens,
		songs:       deps.Songs,
		users:       deps.Users,
		collections: deps.Collections,
		health:      newHealthChecker(deps.Database),
		db:          deps.Database,
		logger:      logger,
	}

	router.GET("/health", handler.handleHealth)
	router.GET("/metrics", gin.WrapH(metrics.httpHandler()))

	router.POST("/auth/send-otp", handler.handleSendOTP)
	router.POST("/auth/verify-otp", handler.handleVerifyOTP)

	router.GET("/songs", handler.optionalAuthorize, handler.handleListSongs)
	router.GET("/songs/:id", handler.handleGetSong)
	router.GET("/collections", handler.optionalAuthorize, handler.handleListCollections)
	router.GET("/collections/:id", handler.handleGetCollection)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/auth/me", handler.handleCurrentUser)
	protected.POST("/songs", handler.handleCreateSong)
	protected.PUT("/songs/:id", handler.handleUpdateSong)
	protected.PUT("/songs/:id/sections/:index", handler.handleUpdateSection)
	protected.DELETE("/songs/:id", handler.handleDeleteSong)
	protected.POST("/songs/:id/favorite", handler.handleToggleFavorite)
	protected.POST("/collections", handler.handleCreateCollection)
	protected.PUT("/collections/:id", handler.handleUpdateCollection)
	protected.DELETE("/collections/:id", handler.handleDeleteCollection)
	protected.POST("/collections/:id/songs", handler.handleAddSongToCollection)
	protected.DELETE("/collections/:id/songs/:songId", handler.handleRemoveSongFromCollection)

	admin := protected.Group("/admin")
	admin.Use(handler.requireAdmin)
	admin.GET("/stats", handler.handleAdminStats)

	return router, nil
}

type httpHandler struct {
	tokens      TokenManager
	songs       *songs.Service
	users       *users.Service
	collections *collections.Service
	health      *healthChecker
	db          *gorm.DB
	logger      *zap.Logger
}

// authorizeRequest rejects requests without a valid bearer token.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	identity, err := h.identityFromHeader(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": err.Error()})
		return
	}
	c.Set(identityContextKey, identity)
	c.Next()
}

// optionalAuthorize attaches an identity when a bearer token is present
// but lets anonymous requests through. A present-but-invalid token is
// still rejected.
func (h *httpHandler) optionalAuthorize(c *gin.Context) {
	if strings.TrimSpace(c.GetHeader("Authorization")) == "" {
		c.Next()
		return
	}
	identity, err := h.identityFromHeader(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": err.Error()})
		return
	}
	c.Set(identityContextKey, identity)
	c.Next()
}

// requireAdmin fails with forbidden for callers without the admin flag.
// It must run after authorizeRequest.
func (h *httpHandler) requireAdmin(c *gin.Context) {
	identity, ok := h.callerIdentity(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if !identity.IsAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "admin only"})
		return
	}
	c.Next()
}

func (h *httpHandler) identityFromHeader(c *gin.Context) (auth.Identity, error) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return auth.Identity{}, errInvalidAuthorization
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return auth.Identity{}, errInvalidAuthorization
	}
	identity, err := h.tokens.Validate(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		return auth.Identity{}, err
	}
	return identity, nil
}

func (h *httpHandler) callerIdentity(c *gin.Context) (auth.Identity, bool) {
	value, exists := c.Get(identityContextKey)
	if !exists {
		return auth.Identity{}, false
	}
	identity, ok := value.(auth.Identity)
	return identity, ok
}
