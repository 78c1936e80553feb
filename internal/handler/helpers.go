package handler

import (
	"errors"
	"io"
	"net/http"

	"grantsbackend/internal/apperr"
	"grantsbackend/internal/middleware"
	"grantsbackend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header alternatives to the idempotency_key / request_hash body fields.
const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderRequestHash    = "X-Request-Hash"
)

// respondError writes err as the standard error envelope, with the status
// derived from its kind. Internal errors are not echoed to the client.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal server error"
	}
	c.JSON(status, response.ErrorWithCode(status, string(kind), msg))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, string(apperr.KindValidation), msg))
}

// bindJSON decodes the request body into obj. An empty body is accepted when
// optional is true. It writes the 400 itself and returns false on failure.
func bindJSON(c *gin.Context, obj any, optional bool) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil || optional && errors.Is(err, io.EOF) {
		return true
	}
	badRequest(c, "Invalid request body: "+err.Error())
	return false
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "Invalid "+name+": must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func actorID(c *gin.Context) (uuid.UUID, bool) {
	id, err := middleware.ActorID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Unauthorized"))
		return uuid.Nil, false
	}
	return id, true
}

// idempotencyHeaders fills key and hash from the request headers when the
// body did not carry them.
func idempotencyHeaders(c *gin.Context, key, hash *string) {
	if *key == "" {
		*key = c.GetHeader(HeaderIdempotencyKey)
	}
	if *hash == "" {
		*hash = c.GetHeader(HeaderRequestHash)
	}
}
