package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/csvagent"
)

// APIResponse is the envelope of every JSON response
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	// SQL is the offending statement when a generated query was rejected or failed
	SQL string `json:"sql,omitempty"`
}

func success(c *gin.Context, statusCode int, data any, message string) {
	c.JSON(statusCode, APIResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

func fail(c *gin.Context, statusCode int, err error, message string) {
	resp := APIResponse{
		Status:  "error",
		Message: message,
	}
	if err != nil {
		resp.Error = err.Error()
		resp.SQL = csvagent.SQLOf(err)
	}
	c.JSON(statusCode, resp)
}

// failFor renders err with the status code of its kind
func failFor(c *gin.Context, err error, message string) {
	fail(c, statusFor(err), err, message)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, csvagent.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, csvagent.ErrInvalidFileName), errors.Is(err, csvagent.ErrInvalidRename):
		return http.StatusBadRequest
	case errors.Is(err, csvagent.ErrParse), errors.Is(err, csvagent.ErrUnsafeQuery), errors.Is(err, csvagent.ErrExecution):
		return http.StatusUnprocessableEntity
	case errors.Is(err, csvagent.ErrSchemaConflict), errors.Is(err, csvagent.ErrNoTable), errors.Is(err, csvagent.ErrNoStore):
		return http.StatusConflict
	case errors.Is(err, csvagent.ErrGeneration):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
