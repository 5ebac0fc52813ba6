package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"pdfdesk/apperrors"
	"pdfdesk/models"
	"pdfdesk/utils"
)

// UserLoader resolves the account behind a validated token.
type UserLoader interface {
	Me(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// AuthMiddleware validates JWT access tokens and loads the user
func AuthMiddleware(tokens *utils.TokenManager, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.UnauthorizedResponse(c, "Authorization header required")
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		tokenParts := strings.SplitN(authHeader, " ", 2)
		if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "Bearer") {
			utils.UnauthorizedResponse(c, "Invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := tokens.ValidateToken(strings.TrimSpace(tokenParts[1]))
		if err != nil {
			utils.AbortWithError(c, apperrors.ErrInvalidToken.WithError(err))
			return
		}

		// Deactivated or deleted accounts lose access immediately
		user, err := users.Me(c.Request.Context(), claims.UserID)
		if err != nil {
			utils.AbortWithError(c, err)
			return
		}

		utils.SetUserInContext(c, user)
		c.Next()
	}
}

// CurrentUser returns the authenticated user. Handlers behind AuthMiddleware
// can rely on it being present.
func CurrentUser(c *gin.Context) *models.User {
	user, _ := utils.GetUserFromContext(c)
	return user
}
