package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Rishav0123/sentimatix/internal/config"
	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Context keys set by the middleware.
const (
	ctxTraceID = "trace_id"
	ctxSubject = "subject"
)

// RequestIDHeader carries the trace id in and out.
const RequestIDHeader = "X-Request-ID"

// Authenticator checks the shared secret of a request.
type Authenticator struct {
	header    string
	apiKey    []byte
	keyHash   []byte
	jwtSecret []byte
}

func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	header := cfg.Header
	if header == "" {
		header = "X-API-Key"
	}
	a := &Authenticator{header: header}
	if cfg.APIKey != "" {
		a.apiKey = []byte(cfg.APIKey)
	}
	if cfg.APIKeyHash != "" {
		a.keyHash = []byte(cfg.APIKeyHash)
	}
	if cfg.JwtSecret != "" {
		a.jwtSecret = []byte(cfg.JwtSecret)
	}
	return a
}

// Authenticate returns the caller's subject: "api-key" for the shared key,
// or the sub claim of a valid bearer token.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	if key := r.Header.Get(a.header); key != "" {
		if a.validKey(key) {
			return "api-key", nil
		}
		return "", models.Unauthenticated("auth", "invalid API key")
	}
	if bearer := r.Header.Get("Authorization"); a.jwtSecret != nil && strings.HasPrefix(bearer, "Bearer ") {
		return a.verifyToken(strings.TrimPrefix(bearer, "Bearer "))
	}
	return "", models.Unauthenticated("auth", fmt.Sprintf("missing %s header", a.header))
}

func (a *Authenticator) validKey(key string) bool {
	if a.apiKey != nil {
		return subtle.ConstantTimeCompare([]byte(key), a.apiKey) == 1
	}
	if a.keyHash != nil {
		return bcrypt.CompareHashAndPassword(a.keyHash, []byte(key)) == nil
	}
	return false
}

func (a *Authenticator) verifyToken(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", models.Unauthenticated("auth", "invalid or expired token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", models.Unauthenticated("auth", "invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", models.Unauthenticated("auth", "token has no subject")
	}
	return sub, nil
}

// AuthMiddleware rejects unauthenticated requests with 401 before any handler runs.
func AuthMiddleware(auth *Authenticator, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, err := auth.Authenticate(c.Request)
		if err != nil {
			requestLogger(c, log).WithError(models.ErrorInfoFrom(err, http.StatusUnauthorized)).Warn("Rejected unauthenticated request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(err))
			return
		}
		c.Set(ctxSubject, subject)
		c.Next()
	}
}

// RequestID reuses the caller's X-Request-ID or mints one, and echoes it back.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxTraceID, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// AccessLog writes one structured line per request.
func AccessLog(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := requestLogger(c, log).
			WithField("status", c.Writer.Status()).
			WithField("latency_ms", time.Since(start).Milliseconds())
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("Request failed")
			return
		}
		entry.Info("Request served")
	}
}

func requestLogger(c *gin.Context, log *logger.Logger) *logger.Logger {
	l := log.WithTrace(c.GetString(ctxTraceID)).WithRequest(models.RequestInfo{
		Method:     c.Request.Method,
		Path:       c.Request.URL.Path,
		RemoteAddr: c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
	if sub := c.GetString(ctxSubject); sub != "" {
		l = l.WithField("user_id", sub)
	}
	return l
}
