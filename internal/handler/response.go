// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"prop-eval-go/internal/apperr"

	"github.com/gin-gonic/gin"
)

// Success 返回统一的成功响应包装。
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success", "data": data})
}

// Fail 把业务错误映射为 {error_kind, message} 响应和对应的状态码。
func Fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	c.JSON(apperr.HTTPStatus(kind), gin.H{
		"error_kind": string(kind),
		"message":    apperr.MessageOf(err),
	})
}
