package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"hostbin/file-api/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errNoToken      = errors.New("no auth token")
	errTokenInvalid = errors.New("token invalid")
	errTokenExpired = errors.New("token expired")
)

// resolveRequester parses the auth cookie and loads the matching user.
// Kept separate so the required and optional variants share it
func resolveRequester(c *gin.Context, d *gorm.DB) (*model.User, error) {
	tokenStr, err := c.Cookie("auth_token")
	if err != nil {
		return nil, errNoToken
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}

		return []byte(viper.GetString("security.jwt_secret")), nil
	})
	if err != nil || !token.Valid {
		return nil, errTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errTokenInvalid
	}

	userID, ok := claims["user_id"].(float64)
	if !ok || userID <= 0 {
		return nil, errTokenInvalid
	}

	exp, ok := claims["exp"].(float64)
	if !ok || time.Now().Unix() >= int64(exp) {
		return nil, errTokenExpired
	}

	var user model.User
	err = d.Where("id = ?", uint(userID)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errTokenInvalid
		}

		zap.L().Error("Failed to look up requester", zap.Error(err))
		return nil, err
	}

	return &user, nil
}

// NewAuthMiddleware rejects requests without a valid auth cookie and
// sets the resolved user on the context
func NewAuthMiddleware(d *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.MustGet("requestID").(string)

		user, err := resolveRequester(c, d)
		if err != nil {
			switch {
			case errors.Is(err, errNoToken), errors.Is(err, errTokenInvalid):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":     "token_invalid",
					"requestID": requestID,
				})
			case errors.Is(err, errTokenExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":     "token_expired",
					"requestID": requestID,
				})
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":     "internal_server_error",
					"requestID": requestID,
				})
			}
			return
		}

		c.Set("user", user)
		c.Next()
	}
}

// NewOptionalAuthMiddleware resolves the requester when a valid auth
// cookie is present but lets anonymous requests through. Used on the
// serving endpoint where public files need no account
func NewOptionalAuthMiddleware(d *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := resolveRequester(c, d)
		if err == nil {
			c.Set("user", user)
		}

		c.Next()
	}
}

// RequesterFrom returns the authenticated user from the context, or
// nil for anonymous requests
func RequesterFrom(c *gin.Context) *model.User {
	if v, ok := c.Get("user"); ok {
		if user, ok := v.(*model.User); ok {
			return user
		}
	}

	return nil
}
