package handler

import (
	"encoding/json"
	"net/http"
	"prop-eval-go/internal/apperr"
	"prop-eval-go/internal/config"
	"prop-eval-go/internal/model"
	"prop-eval-go/internal/service"
	"prop-eval-go/pkg/log"
	"prop-eval-go/pkg/token"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 处理两种策略的对话请求与 WebSocket 流式连接。
type ChatHandler struct {
	chatService service.ChatService
	jwtManager  *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		jwtManager:  jwtManager,
	}
}

// chatRequest 是一轮对话的请求体。ConversationID 为空时开启新对话，
// CorpusScope 为空时使用配置中的第一个作用域。
type chatRequest struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text" binding:"required"`
	CorpusScope    string `json:"corpusScope"`
}

func defaultScope(scope string) string {
	if scope == "" && len(config.Conf.Corpus.Scopes) > 0 {
		return config.Conf.Corpus.Scopes[0]
	}
	return scope
}

// Guideline 处理 guideline 策略的对话：回答只允许依据检索到的段落。
func (h *ChatHandler) Guideline(c *gin.Context) {
	h.respond(c, model.PolicyGuideline)
}

// Specialist 处理 specialist 策略的对话：允许补充专家经验。
func (h *ChatHandler) Specialist(c *gin.Context) {
	h.respond(c, model.PolicySpecialist)
}

func (h *ChatHandler) respond(c *gin.Context, policy model.Policy) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, apperr.Wrap(apperr.KindInvalidArgument, "请求体不合法", err))
		return
	}
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	turn, err := h.chatService.Respond(c.Request.Context(), conversationID, req.Text, policy, defaultScope(req.CorpusScope))
	if err != nil {
		log.Warnf("[ChatHandler] 对话失败, conversation: %s, policy: %s, err: %v", conversationID, policy, err)
		Fail(c, err)
		return
	}

	Success(c, gin.H{
		"conversationId": conversationID,
		"turn":           turn,
	})
}

// History 返回一个对话的全部历史消息。
func (h *ChatHandler) History(c *gin.Context) {
	conversationID := c.Param("id")
	turns, err := h.chatService.History(c.Request.Context(), conversationID)
	if err != nil {
		log.Errorf("[ChatHandler] 读取对话历史失败, conversation: %s, err: %v", conversationID, err)
		Fail(c, err)
		return
	}
	Success(c, turns)
}

// Stream 处理一个传入的 WebSocket 连接，每条消息作为一轮对话流式回答。
func (h *ChatHandler) Stream(c *gin.Context) {
	policy := model.Policy(c.Param("policy"))
	if !policy.Valid() {
		Fail(c, apperr.Newf(apperr.KindInvalidArgument, "未知的对话策略: %s", policy))
		return
	}

	tokenString := c.Query("token")
	if _, err := h.jwtManager.VerifyToken(tokenString); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无效或已过期的 token"})
		return
	}

	corpusScope := defaultScope(c.Query("corpusScope"))
	conversationID := c.Query("conversationId")
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立, conversation: %s, policy: %s", conversationID, policy)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		turn, err := h.chatService.StreamRespond(c.Request.Context(), conversationID, string(message), policy, corpusScope, conn)
		if err != nil {
			log.Errorf("[ChatHandler] 流式对话失败, conversation: %s, err: %v", conversationID, err)
			errResp, _ := json.Marshal(gin.H{
				"type":       "error",
				"error_kind": string(apperr.KindOf(err)),
				"message":    apperr.MessageOf(err),
			})
			_ = conn.WriteMessage(websocket.TextMessage, errResp)
			continue
		}

		// 流结束后发送 completion 通知，带上本轮引用
		completion, _ := json.Marshal(gin.H{
			"type":           "completion",
			"status":         "finished",
			"conversationId": conversationID,
			"citations":      turn.Citations,
			"timestamp":      time.Now().UnixMilli(),
		})
		_ = conn.WriteMessage(websocket.TextMessage, completion)
	}
}
