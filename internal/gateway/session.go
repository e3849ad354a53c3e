package gateway

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/BrickBench/AutoMarathon/internal/domain"
	pkglog "github.com/BrickBench/AutoMarathon/pkg/log"
	"github.com/BrickBench/AutoMarathon/pkg/response"
)

const (
	// mutationRate limits mutations per session.
	mutationRate  = rate.Limit(20)
	mutationBurst = 20

	defaultTokenTTL = 12 * time.Hour
)

// Sessions validates bearer credentials: either the shared secret itself
// or an HMAC session token issued against it.
type Sessions struct {
	secret []byte
	ttl    time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewSessions creates the session validator.
func NewSessions(secret string, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Sessions{
		secret:   []byte(secret),
		ttl:      ttl,
		limiters: make(map[string]*rate.Limiter),
	}
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name"`
}

// Issue exchanges the shared secret for a named session token.
func (s *Sessions) Issue(secret, name string) (string, error) {
	if subtle.ConstantTimeCompare([]byte(secret), s.secret) != 1 {
		return "", fmt.Errorf("%w: bad shared secret", domain.ErrUnauthorized)
	}
	if name == "" {
		name = "operator"
	}
	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Name: name,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("%w: sign token: %v", domain.ErrUnauthorized, err)
	}
	return signed, nil
}

// Validate returns the session name for a credential, or false.
func (s *Sessions) Validate(credential string) (string, bool) {
	if credential == "" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(credential), s.secret) == 1 {
		return "operator", true
	}

	var claims sessionClaims
	token, err := jwt.ParseWithClaims(credential, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", false
	}
	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return name, true
}

// Allow applies the per-session mutation rate limit.
func (s *Sessions) Allow(name string) bool {
	s.mu.Lock()
	limiter, ok := s.limiters[name]
	if !ok {
		limiter = rate.NewLimiter(mutationRate, mutationBurst)
		s.limiters[name] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

// bearer extracts the credential from the Authorization header or, for
// websocket clients, the token query parameter.
func bearer(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

// Auth is the session-validation middleware.
func (s *Sessions) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		name, ok := s.Validate(bearer(c))
		if !ok {
			response.Unauthorized(c, "missing or invalid session")
			c.Abort()
			return
		}
		c.Set(pkglog.FieldSession, name)
		c.Next()
	}
}

// RateLimit rejects sessions exceeding the mutation budget.
func (s *Sessions) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.GetString(pkglog.FieldSession)
		if !s.Allow(name) {
			response.Error(c, 429, "ERR_BAD_REQUEST", "mutation rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

// sessionName returns the validated session name from the context.
func sessionName(c *gin.Context) string {
	return c.GetString(pkglog.FieldSession)
}
