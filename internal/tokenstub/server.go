// Package tokenstub is a stand-in for the hosted video token endpoint. It
// signs short-lived grants for whatever identity it is asked about.
package tokenstub

import (
	"net/http"
	"strings"
	"time"

	"chatgate/internal/infrastructure/middleware"
	apperrors "chatgate/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxIdentityLength = 256

type Config struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
}

// VideoGrant mirrors the grant block hosted video providers put in their
// access tokens.
type VideoGrant struct {
	Identity string   `json:"identity"`
	Video    struct{} `json:"video"`
}

type Claims struct {
	Grants VideoGrant `json:"grants"`
	jwt.RegisteredClaims
}

type Server struct {
	cfg    Config
	now    func() time.Time
	logger *zap.SugaredLogger
}

func New(cfg Config, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	return &Server{cfg: cfg, now: time.Now, logger: logger}
}

// Router builds the stub's gin engine. Every origin is allowed.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(s.logger))
	router.Use(middleware.ErrorHandlerMiddleware(s.logger))
	router.Use(middleware.CORSMiddleware([]string{"*"}))

	router.POST("/create-token", s.CreateToken)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	return router
}

type createTokenRequest struct {
	Identity string `json:"identity"`
}

func (s *Server) CreateToken(c *gin.Context) {
	var req createTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}
	identity := strings.TrimSpace(req.Identity)
	if identity == "" {
		c.Error(apperrors.NewInvalidInputError("identity is required"))
		return
	}
	if len(identity) > maxIdentityLength {
		c.Error(apperrors.NewInvalidInputError("identity is too long"))
		return
	}

	token, err := s.Sign(identity)
	if err != nil {
		c.Error(apperrors.NewInternalError("failed to sign token"))
		return
	}

	s.logger.Debugw("issued video token", "identity", identity)
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Sign returns an HS256 grant for identity.
func (s *Server) Sign(identity string) (string, error) {
	now := s.now()
	claims := Claims{
		Grants: VideoGrant{Identity: identity},
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.cfg.Issuer,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
}
