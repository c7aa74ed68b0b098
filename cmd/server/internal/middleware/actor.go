package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims 用户令牌声明，与用户服务签发的令牌一致
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// ResolveActor 从 Bearer JWT 中解析操作者并写入 context 的 "user"
// secret 为空时不做解析；令牌无效时返回 401
func ResolveActor(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(secret) == 0 {
			c.Next()
			return
		}
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.Next()
			return
		}

		claims, err := ParseToken(secret, strings.TrimSpace(raw))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid token",
				"code":    "unauthorized",
			})
			return
		}
		c.Set("user", claims.Username)
		c.Next()
	}
}

// ParseToken 验证 HS256 令牌并返回 claims
func ParseToken(secret []byte, tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Username == "" {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}
