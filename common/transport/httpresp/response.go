package httpresp

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	ErrMissingBearerToken = "bearer token is required"
	ErrInvalidToken       = "invalid token"
	ErrNotFound           = "not found"
	ErrForbidden          = "forbidden"
	ErrInvalidBody        = "invalid request body"
	ErrContentRequired    = "content should not be empty"
	ErrChatroomRequired   = "chatroomId is required"
	ErrUserIDRequired     = "userId is required"
	ErrContractIDRequired = "contractId is required"
	ErrSigningOption      = "signingOption must be VNPT or SELF_CA"
)

// Envelope is the {code, message, data} wrapper every REST route returns.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userId"`
	FullName    string `json:"fullName"`
	Role        string `json:"role"`
	ExpiresAt   int64  `json:"expiresAt"`
}

func NewEnvelope(code int, message string, data any) Envelope {
	return Envelope{Code: code, Message: message, Data: data}
}

func NewErrorResponse(code int, message string) Envelope {
	return Envelope{Code: code, Message: message}
}

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, NewEnvelope(http.StatusOK, "Success", data))
}

func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, NewEnvelope(http.StatusCreated, "Created", data))
}

func Fail(c *gin.Context, status int, message string) {
	c.JSON(status, NewErrorResponse(status, message))
}

func Abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, NewErrorResponse(status, message))
}
