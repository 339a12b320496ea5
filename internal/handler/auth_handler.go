package handler

import (
	"net/http"
	"prop-eval-go/internal/apperr"
	"prop-eval-go/internal/config"
	"prop-eval-go/pkg/log"
	"prop-eval-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// AuthHandler 处理机器客户端的服务令牌签发。
type AuthHandler struct {
	jwtManager *token.JWTManager
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(jwtManager *token.JWTManager) *AuthHandler {
	return &AuthHandler{jwtManager: jwtManager}
}

// tokenRequest 是换取服务令牌的请求体。
type tokenRequest struct {
	ClientID  string `json:"clientId" binding:"required"`
	ClientKey string `json:"clientKey" binding:"required"`
}

// Token 校验客户端凭据并签发 JWT 服务令牌。
func (h *AuthHandler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, apperr.Wrap(apperr.KindInvalidArgument, "请求体不合法", err))
		return
	}

	if !clientAllowed(req.ClientID, req.ClientKey) {
		log.Warnf("[AuthHandler] 客户端凭据校验失败, clientId: %s", req.ClientID)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "客户端凭据无效"})
		return
	}

	tokenString, err := h.jwtManager.GenerateToken(req.ClientID)
	if err != nil {
		log.Errorf("[AuthHandler] 签发服务令牌失败: %v", err)
		Fail(c, apperr.Wrap(apperr.KindInternal, "签发服务令牌失败", err))
		return
	}

	log.Infof("[AuthHandler] 服务令牌签发成功, clientId: %s", req.ClientID)
	Success(c, gin.H{"token": tokenString})
}

func clientAllowed(clientID, clientKey string) bool {
	for _, client := range config.Conf.Auth.Clients {
		if client.ID == clientID && client.Key == clientKey {
			return true
		}
	}
	return false
}
