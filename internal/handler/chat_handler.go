// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"agent-platform-go/internal/model"
	"agent-platform-go/internal/rag"
	"agent-platform-go/internal/service"
	"agent-platform-go/pkg/log"
	"agent-platform-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// streamTokenTTL 是 WebSocket 流式令牌的有效期。
const streamTokenTTL = 5 * time.Minute

// ChatHandler 负责处理同步对话请求与 WebSocket 流式对话连接。
type ChatHandler struct {
	chatService   service.ChatService
	jwtManager    *token.JWTManager
	stopToken     string
	stopTokenLock sync.Mutex
	// 每连接停止标志
	stopFlags sync.Map // key: session pointer string, value: bool
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		jwtManager:  jwtManager,
	}
}

// Chat 处理同步对话请求。
// 匿名调用按 owner 为空处理：不触达私有文档，也不持久化会话。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	owner := ownerFromContext(c)
	result, err := h.chatService.Chat(c.Request.Context(), owner, &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	// citations 字段只在启用检索时出现：检索无命中时为 []，未启用检索时整个字段缺省
	resp := gin.H{"response": result.Response}
	if result.Citations != nil {
		resp["citations"] = result.Citations
	}
	if result.ConversationID != nil {
		resp["conversation_id"] = result.ConversationID
	}
	c.JSON(http.StatusOK, resp)
}

// GetWebsocketToken 为 WebSocket 流式对话签发凭证。
// WebSocket 握手无法携带 Authorization 头，前端先在这里用访问令牌
// 换取短期的 ws_token 拼在连接路径上；cmd_token 用于发送停止指令。
func (h *ChatHandler) GetWebsocketToken(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	streamToken, err := h.jwtManager.GenerateStreamToken(ownerID, "", streamTokenTTL)
	if err != nil {
		log.Errorf("[ChatHandler] 签发流式令牌失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误", "code": "INTERNAL"})
		return
	}

	h.stopTokenLock.Lock()
	defer h.stopTokenLock.Unlock()
	// 在真实的多服务器设置中，这应该在 Redis 中生成和存储
	// 为简单起见，我们在这里使用一个单一的、轮换的令牌。
	h.stopToken = "WSS_STOP_CMD_" + token.GenerateRandomString(16)
	c.JSON(http.StatusOK, gin.H{"ws_token": streamToken, "cmd_token": h.stopToken})
}

// Stream 处理一个传入的 WebSocket 流式对话连接。
// 连接路径携带短期流式令牌；每条消息要么是 JSON 格式的对话请求，
// 要么是停止指令，要么是作为问题的纯文本。
func (h *ChatHandler) Stream(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的 token"})
		return
	}
	ownerID, err := claims.UserID()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的 token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("WebSocket 升级失败: %v", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s", ownerID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		// 1) JSON 停止指令: {"type":"stop","_internal_cmd_token":"..."}
		if h.handleStopCommand(conn, message) {
			continue
		}
		// 2) 旧停止令牌：整条消息等于 stopToken（保留兼容）
		h.stopTokenLock.Lock()
		stopTokenValue := h.stopToken
		h.stopTokenLock.Unlock()
		if string(message) == stopTokenValue {
			log.Info("收到停止指令，正在中断流式响应...")
			h.stopFlags.Store(sessionKey(conn), true)
			continue
		}

		req := parseStreamRequest(message)
		shouldStop := func() bool {
			v, ok := h.stopFlags.Load(sessionKey(conn))
			return ok && v.(bool)
		}
		// 清除上一轮的停止标志
		h.stopFlags.Delete(sessionKey(conn))

		err = h.chatService.StreamResponse(c.Request.Context(), &ownerID, req, conn, shouldStop)
		if err == nil {
			continue
		}

		var validationErr *rag.ValidationError
		if errors.As(err, &validationErr) {
			// 输入错误不中断连接，把原因回传给客户端
			b, _ := json.Marshal(map[string]string{"error": validationErr.Message})
			_ = conn.WriteMessage(websocket.TextMessage, b)
			continue
		}

		log.Errorf("处理流式响应失败: %v", err)
		// 统一 JSON 错误
		errResp := map[string]string{"error": "AI服务暂时不可用，请稍后重试"}
		b, _ := json.Marshal(errResp)
		_ = conn.WriteMessage(websocket.TextMessage, b)
		// 错误时也发送 completion 通知，客户端据此结束本轮渲染
		resp := map[string]interface{}{
			"type":      "completion",
			"status":    "finished",
			"message":   "响应已完成",
			"timestamp": time.Now().UnixMilli(),
			"date":      time.Now().Format("2006-01-02T15:04:05"),
		}
		cb, _ := json.Marshal(resp)
		_ = conn.WriteMessage(websocket.TextMessage, cb)
		break
	}
}

// handleStopCommand 识别并处理 JSON 停止指令，返回是否已处理该消息。
func (h *ChatHandler) handleStopCommand(conn *websocket.Conn, message []byte) bool {
	if len(message) == 0 || message[0] != '{' {
		return false
	}
	var ctrl map[string]interface{}
	if err := json.Unmarshal(message, &ctrl); err != nil {
		return false
	}
	t, ok := ctrl["type"].(string)
	if !ok || t != "stop" {
		return false
	}
	tok, ok := ctrl["_internal_cmd_token"].(string)
	if !ok {
		return false
	}

	h.stopTokenLock.Lock()
	valid := tok == h.stopToken
	h.stopTokenLock.Unlock()
	if !valid {
		return false
	}

	h.stopFlags.Store(sessionKey(conn), true)
	// 回发停止确认
	resp := map[string]interface{}{
		"type":      "stop",
		"message":   "响应已停止",
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	}
	b, _ := json.Marshal(resp)
	_ = conn.WriteMessage(websocket.TextMessage, b)
	return true
}

// parseStreamRequest 把一条 WebSocket 消息解析为对话请求。
// JSON 对象按完整请求体解析；纯文本按单条 user 问题处理并默认开启检索。
func parseStreamRequest(message []byte) *model.ChatRequest {
	if len(message) > 0 && message[0] == '{' {
		var req model.ChatRequest
		if err := json.Unmarshal(message, &req); err == nil && len(req.Messages) > 0 {
			return &req
		}
	}
	return &model.ChatRequest{
		Messages: []model.ChatMessage{{Role: "user", Content: string(message)}},
		UseRAG:   true,
	}
}

func sessionKey(conn *websocket.Conn) string {
	return fmt.Sprintf("%p", conn)
}
