package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"funnelsight/api/utils"
)

// AuthRequired protects dashboard endpoints with a JWT from the login cookie
// or an Authorization bearer header.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := c.Cookie("jwt_token")
		if err != nil {
			tokenString = c.GetHeader("Authorization")
			if tokenString == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: No token provided"})
				return
			}
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")
		}

		claims, err := utils.ValidateJWT(tokenString)
		if err != nil {
			log.Debug().Err(err).Msg("rejected invalid dashboard token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid or expired token"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_email", claims.Email)
		c.Next()
	}
}

// TriggerAuth protects the sync and alert-check triggers. External schedulers
// authenticate with a static bearer secret; requests originating from the
// dashboard itself (manual internal sync) pass on the browser's same-origin
// signal or a referer match instead, so the secret never has to reach the
// frontend.
func TriggerAuth(secret, dashboardOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret != "" {
			auth := c.GetHeader("Authorization")
			if strings.TrimPrefix(auth, "Bearer ") == secret && auth != "" {
				c.Next()
				return
			}
		}

		if c.GetHeader("Sec-Fetch-Site") == "same-origin" {
			c.Next()
			return
		}
		referer := c.GetHeader("Referer")
		if dashboardOrigin != "" && referer != "" && strings.Contains(referer, dashboardOrigin) {
			c.Next()
			return
		}

		log.Warn().Str("path", c.Request.URL.Path).Str("ip", c.ClientIP()).Msg("rejected trigger request")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	}
}
