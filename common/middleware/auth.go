package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"takahome/common/transport/httpresp"
)

const (
	CtxAccessToken = "auth_access_token"
	CtxUserID      = "auth_user_id"
	CtxFullName    = "auth_full_name"
	CtxRole        = "auth_role"
)

type tokenAuth interface {
	ParseAuthContext(token string) (userID, fullName, role string, err error)
}

// BearerToken reads the access token from the Authorization header, falling
// back to the token query parameter used by websocket clients.
func BearerToken(c *gin.Context, allowQuery bool) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token != "" {
			return token, true
		}
	}
	if !allowQuery {
		return "", false
	}
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = strings.TrimSpace(c.Query("access_token"))
	}
	return token, token != ""
}

func AuthRequired(auth tokenAuth) gin.HandlerFunc {
	return authenticate(auth, false)
}

// SocketAuthRequired is AuthRequired for upgrade requests, which may carry the
// token in the query string.
func SocketAuthRequired(auth tokenAuth) gin.HandlerFunc {
	return authenticate(auth, true)
}

func authenticate(auth tokenAuth, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c, allowQuery)
		if !ok {
			httpresp.Abort(c, http.StatusUnauthorized, httpresp.ErrMissingBearerToken)
			return
		}
		userID, fullName, role, err := auth.ParseAuthContext(token)
		if err != nil {
			httpresp.Abort(c, http.StatusUnauthorized, httpresp.ErrInvalidToken)
			return
		}
		c.Set(CtxAccessToken, token)
		c.Set(CtxUserID, userID)
		c.Set(CtxFullName, fullName)
		c.Set(CtxRole, role)
		c.Next()
	}
}

// Actor returns the authenticated user id and display name.
func Actor(c *gin.Context) (userID, fullName string) {
	return c.GetString(CtxUserID), c.GetString(CtxFullName)
}
