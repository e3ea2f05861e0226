package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"

	"chefassist/internal/apierr"
	"chefassist/internal/channel"
)

const (
	ctxChefID  = "chef_id"
	ctxChannel = "channel"
)

// ErrInvalidToken wraps every reason a token is refused.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the credential a caller presents. Channel is set by whoever mints
// the token (the dashboard or a bridge), never by message content.
type Claims struct {
	ChefID  string `json:"chef_id"`
	Channel string `json:"channel"`
	jwt.StandardClaims
}

// IssueToken mints an HS256 token for a chef on a channel.
func IssueToken(secret, chefID string, c channel.Channel, ttl time.Duration, now time.Time) (string, error) {
	if chefID == "" {
		return "", errors.New("chef id is required")
	}
	claims := Claims{
		ChefID:  chefID,
		Channel: c.String(),
		StandardClaims: jwt.StandardClaims{
			Subject:   chefID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates signature, algorithm and expiry.
func ParseToken(secret, raw string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ChefID == "" {
		return Claims{}, fmt.Errorf("%w: missing chef_id", ErrInvalidToken)
	}
	return claims, nil
}

// AuthMiddleware handles JWT authentication. The query token is accepted only
// where browsers cannot set headers, i.e. the websocket upgrade.
func AuthMiddleware(secret string, allowQueryToken bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" && allowQueryToken {
			raw = c.Query("token")
		}
		if raw == "" {
			RespondError(c, apierr.Unauthorized("missing or invalid token"))
			c.Abort()
			return
		}

		claims, err := ParseToken(secret, raw)
		if err != nil {
			RespondError(c, apierr.Unauthorized("missing or invalid token"))
			c.Abort()
			return
		}

		c.Set(ctxChefID, claims.ChefID)
		c.Set(ctxChannel, channel.Parse(claims.Channel))
		c.Next()
	}
}

func bearerToken(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func caller(c *gin.Context) (string, channel.Channel) {
	chefID := c.GetString(ctxChefID)
	ch, _ := c.Get(ctxChannel)
	parsed, _ := ch.(channel.Channel)
	return chefID, parsed
}
