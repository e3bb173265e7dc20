package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"loteo/internal/pkg/errs"
)

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func ErrorWithDetails(c *gin.Context, statusCode int, code string, message string, details any) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// StatusForKind maps the errs taxonomy onto HTTP statuses.
func StatusForKind(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrNotFound:
		return http.StatusNotFound
	case errs.ErrConflict:
		return http.StatusConflict
	case errs.ErrValidation:
		return http.StatusBadRequest
	case errs.ErrUpstream:
		return http.StatusBadGateway
	case errs.ErrForbidden:
		return http.StatusForbidden
	case errs.ErrUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// FromError writes an error envelope using the taxonomy kind of err. The
// error is also attached to the gin context so ErrorLogger records it.
func FromError(c *gin.Context, err error, code string) {
	status := StatusForKind(err)
	_ = c.Error(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	Error(c, status, code, msg)
}
