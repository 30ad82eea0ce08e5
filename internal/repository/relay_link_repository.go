package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RelayLinkRepository 维护中继频道与项目之间的关联。
// 出站发送时记录 频道→项目 映射，入站回调解析会话归属时优先查它。
// 映射是易失的启发式数据，放在 Redis 并设置过期即可。
type RelayLinkRepository interface {
	LinkChannel(ctx context.Context, chatID int64, projectID string) error
	// LinkedProject 返回频道关联的项目 ID；没有关联时返回空串。
	LinkedProject(ctx context.Context, chatID int64) (string, error)
}

type redisRelayLinkRepository struct {
	redisClient *redis.Client
}

// NewRelayLinkRepository 创建一个新的 RelayLinkRepository 实例。
func NewRelayLinkRepository(redisClient *redis.Client) RelayLinkRepository {
	return &redisRelayLinkRepository{redisClient: redisClient}
}

const relayLinkTTL = 30 * 24 * time.Hour

func relayLinkKey(chatID int64) string {
	return fmt.Sprintf("relay:link:%d", chatID)
}

// LinkChannel 记录 频道→项目 映射，重复写入会刷新过期时间。
func (r *redisRelayLinkRepository) LinkChannel(ctx context.Context, chatID int64, projectID string) error {
	if err := r.redisClient.Set(ctx, relayLinkKey(chatID), projectID, relayLinkTTL).Err(); err != nil {
		return fmt.Errorf("failed to set relay link: %w", err)
	}
	return nil
}

// LinkedProject 返回频道关联的项目 ID。
func (r *redisRelayLinkRepository) LinkedProject(ctx context.Context, chatID int64) (string, error) {
	projectID, err := r.redisClient.Get(ctx, relayLinkKey(chatID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get relay link: %w", err)
	}
	return projectID, nil
}
