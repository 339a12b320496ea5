// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"prop-eval-go/internal/model"
	"time"

	"github.com/go-redis/redis/v8"
)

// ConversationRepository 定义了对话历史记录的操作接口。
// 对话标识由调用方提供，服务端不维护用户与对话的映射。
type ConversationRepository interface {
	GetHistory(ctx context.Context, conversationID string) ([]model.ChatTurn, error)
	AppendTurns(ctx context.Context, conversationID string, turns ...model.ChatTurn) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

// GetHistory 从 Redis 获取对话历史记录。
func (r *redisConversationRepository) GetHistory(ctx context.Context, conversationID string) ([]model.ChatTurn, error) {
	key := conversationKey(conversationID)
	jsonData, err := r.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		return []model.ChatTurn{}, nil // No history yet
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	var turns []model.ChatTurn
	err = json.Unmarshal([]byte(jsonData), &turns)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation history: %w", err)
	}
	return turns, nil
}

// AppendTurns 将若干条消息追加到对话历史末尾。
func (r *redisConversationRepository) AppendTurns(ctx context.Context, conversationID string, turns ...model.ChatTurn) error {
	history, err := r.GetHistory(ctx, conversationID)
	if err != nil {
		return err
	}
	history = append(history, turns...)

	// 保留最近 40 条
	if len(history) > 40 {
		history = history[len(history)-40:]
	}
	jsonData, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation history: %w", err)
	}
	err = r.redisClient.Set(ctx, conversationKey(conversationID), jsonData, 7*24*time.Hour).Err()
	if err != nil {
		return fmt.Errorf("failed to set conversation history: %w", err)
	}
	return nil
}

func conversationKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s", conversationID)
}
