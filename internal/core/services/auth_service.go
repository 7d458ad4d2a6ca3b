package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/ports"
	"chatgate/pkg/validation"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type AuthService interface {
	Register(ctx context.Context, login, displayName, password string) (*domain.UserRecord, error)
	Login(ctx context.Context, login, password string) (*domain.UserRecord, error)
	Identity(ctx context.Context, userID domain.UserID) (domain.UserIdentity, error)
	AssignRole(ctx context.Context, userID domain.UserID, role domain.RoleName) error
	IssueTokens(user domain.UserIdentity) (*TokenPair, error)
	GenerateToken(userID domain.UserID, username string) (string, error)
	GenerateRefreshToken(userID domain.UserID) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
	ValidateRefreshToken(tokenString string) (*Claims, error)
}

type Claims struct {
	UserID    domain.UserID `json:"user_id"`
	Username  string        `json:"username,omitempty"`
	TokenType string        `json:"token_type"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string              `json:"access_token"`
	RefreshToken string              `json:"refresh_token"`
	ExpiresIn    int64               `json:"expires_in"`
	User         domain.UserIdentity `json:"user"`
}

type authService struct {
	store           ports.DocumentStore
	logger          *zap.SugaredLogger
	jwtSecret       []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	bcryptCost      int
	locker          ports.Locker
}

type AuthOption func(*authService)

// WithLoginLocker serialises registrations of the same login through
// locker, closing the window between the duplicate check and the write.
func WithLoginLocker(locker ports.Locker) AuthOption {
	return func(s *authService) {
		s.locker = locker
	}
}

func NewAuthService(
	store ports.DocumentStore,
	logger *zap.SugaredLogger,
	jwtSecret string,
	accessTokenTTL time.Duration,
	refreshTokenTTL time.Duration,
	bcryptCost int,
	opts ...AuthOption,
) AuthService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	s := &authService{
		store:           store,
		logger:          logger,
		jwtSecret:       []byte(jwtSecret),
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
		bcryptCost:      bcryptCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *authService) Register(ctx context.Context, login, displayName, password string) (*domain.UserRecord, error) {
	login = strings.TrimSpace(login)
	displayName = strings.TrimSpace(displayName)
	if err := validation.ValidateLogin(login); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if err := validation.ValidateDisplayName(displayName); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, "login:"+strings.ToLower(login))
		if err != nil {
			return nil, fmt.Errorf("lock login: %w", err)
		}
		defer release()
	}

	existing, err := s.findByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrLoginTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.store.Add(ctx, domain.UsersCollection, domain.Fields{
		fieldLogin:        login,
		fieldName:         displayName,
		fieldPasswordHash: string(hash),
		fieldCreatedAt:    domain.ServerTimestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("store user: %w", err)
	}

	s.logger.Infow("user registered", "user_id", id, "login", login)

	doc, err := s.store.Get(ctx, domain.UserPath(domain.UserID(id)))
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	user := userFromDocument(*doc)
	return &user, nil
}

// Login checks the password against the stored hash. Unknown logins and
// wrong passwords are indistinguishable to the caller.
func (s *authService) Login(ctx context.Context, login, password string) (*domain.UserRecord, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.findByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	return user, nil
}

func (s *authService) findByLogin(ctx context.Context, login string) (*domain.UserRecord, error) {
	docs, err := s.store.Query(ctx, domain.UsersCollection, domain.Query{})
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	for _, doc := range docs {
		if strings.EqualFold(doc.Fields.GetString(fieldLogin), login) {
			user := userFromDocument(doc)
			return &user, nil
		}
	}
	return nil, nil
}

func (s *authService) Identity(ctx context.Context, userID domain.UserID) (domain.UserIdentity, error) {
	doc, err := s.store.Get(ctx, domain.UserPath(userID))
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return domain.UserIdentity{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.UserIdentity{}, fmt.Errorf("get user: %w", err)
	}
	return userFromDocument(*doc).Identity(), nil
}

// AssignRole grants role to the user. Granting a role the user already has
// is a no-op.
func (s *authService) AssignRole(ctx context.Context, userID domain.UserID, role domain.RoleName) error {
	if err := validation.ValidateRoleName(string(role)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if _, err := s.Identity(ctx, userID); err != nil {
		return err
	}

	docs, err := s.store.Query(ctx, domain.UserRolesPath(userID), roleQuery)
	if err != nil {
		return fmt.Errorf("query user roles: %w", err)
	}
	if roleSetFromDocuments(docs).Contains(role) {
		return nil
	}

	if _, err := s.store.Add(ctx, domain.UserRolesPath(userID), roleFields(role)); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	s.logger.Infow("role assigned", "user_id", userID, "role", role)
	return nil
}

func (s *authService) IssueTokens(user domain.UserIdentity) (*TokenPair, error) {
	access, err := s.GenerateToken(user.ID, user.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTokenTTL.Seconds()),
		User:         user,
	}, nil
}

func (s *authService) GenerateToken(userID domain.UserID, username string) (string, error) {
	return s.sign(userID, username, tokenTypeAccess, s.accessTokenTTL)
}

func (s *authService) GenerateRefreshToken(userID domain.UserID) (string, error) {
	return s.sign(userID, "", tokenTypeRefresh, s.refreshTokenTTL)
}

func (s *authService) sign(userID domain.UserID, username, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    userID,
		Username:  username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, tokenTypeAccess)
}

func (s *authService) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, tokenTypeRefresh)
}

func (s *authService) validate(tokenString, tokenType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != tokenType || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
