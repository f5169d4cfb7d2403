package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/emunro22/root-fuel/configs"
	"github.com/emunro22/root-fuel/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type TokenHandler struct {
	cfg     configs.SecurityConfig
	clients security.Clients
	now     func() time.Time
}

func NewTokenHandler(cfg configs.SecurityConfig, clients security.Clients) *TokenHandler {
	return &TokenHandler{cfg: cfg, clients: clients, now: time.Now}
}

// POST /v1/token (form)
// Accepts: client_id, client_secret
// Optional: scope (space-separated subset of client's perms)
func (h *TokenHandler) IssueToken(c *gin.Context) {
	if h.cfg.JWTSecret == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "token issuance disabled"})
		return
	}

	cl, ok := h.clients.Authenticate(c.PostForm("client_id"), c.PostForm("client_secret"))
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_client"})
		return
	}

	perms := cl.Perms
	if scope := strings.Fields(c.PostForm("scope")); len(scope) > 0 {
		var ok bool
		if perms, ok = subset(scope, cl.Perms); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_scope"})
			return
		}
	}

	now := h.now()
	claims := jwt.MapClaims{
		"iss":   h.cfg.Issuer,
		"aud":   h.cfg.Audience,
		"sub":   cl.ID,
		"iat":   now.Unix(),
		"nbf":   now.Unix(),
		"exp":   now.Add(h.cfg.TTL).Unix(),
		"perms": perms,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.cfg.JWTSecret))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": signed,
		"token_type":   "Bearer",
		"expires_in":   int64(h.cfg.TTL.Seconds()),
	})
}

func subset(want, have []string) ([]string, bool) {
	allowed := make(map[string]bool, len(have))
	for _, p := range have {
		allowed[p] = true
	}
	for _, p := range want {
		if !allowed[p] {
			return nil, false
		}
	}
	return want, true
}
