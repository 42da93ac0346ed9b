package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type ErrorBody struct {
	Errors string `json:"errors"`
}

type DetailBody struct {
	Detail string `json:"detail"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func Detail(c *gin.Context, message string) {
	c.JSON(http.StatusOK, DetailBody{Detail: message})
}

// Error writes the error body and stops the handler chain.
func Error(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{Errors: message})
}

func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

func ServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}
