package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"collisionsystem/internal/config"
	"collisionsystem/internal/model"
	"collisionsystem/internal/repository"
)

const hotTagCacheKey = "hottag:top"

// HotTagService 热门关键词统计与榜单
// 计数是旁路统计，失败只打日志，绝不影响主流程
type HotTagService struct {
	hotTagRepo  *repository.HotTagRepository
	redisClient *redis.Client
	cacheTTL    time.Duration
}

func NewHotTagService(hotTagRepo *repository.HotTagRepository,
	redisClient *redis.Client, cfg *config.Config) *HotTagService {
	return &HotTagService{
		hotTagRepo:  hotTagRepo,
		redisClient: redisClient,
		cacheTTL:    time.Duration(cfg.Business.HotTagCacheTTLMs) * time.Millisecond,
	}
}

func (s *HotTagService) RecordSubmit(ctx context.Context, keyword string) {
	if err := s.hotTagRepo.IncrementSubmit(ctx, keyword); err != nil {
		log.Printf("[HotTag] 提交计数失败 keyword=%s err=%v", keyword, err)
	}
}

func (s *HotTagService) RecordMatch(ctx context.Context, keyword string) {
	if err := s.hotTagRepo.IncrementMatch(ctx, keyword); err != nil {
		log.Printf("[HotTag] 匹配计数失败 keyword=%s err=%v", keyword, err)
	}
}

// IsBlackhole 黑洞词可以正常提交扣费，但永不进入匹配
func (s *HotTagService) IsBlackhole(ctx context.Context, keyword string) (bool, error) {
	tag, err := s.hotTagRepo.GetByKeyword(ctx, keyword)
	if err != nil {
		return false, err
	}
	return tag != nil && tag.Status == model.HotTagStatusBlackhole, nil
}

// Top 热门榜单，带短 TTL 的 Redis 读缓存
func (s *HotTagService) Top(ctx context.Context, limit int) ([]*model.HotTag, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}

	if s.redisClient != nil {
		cached, err := s.redisClient.Get(ctx, hotTagCacheKey).Result()
		if err == nil {
			var tags []*model.HotTag
			if json.Unmarshal([]byte(cached), &tags) == nil && len(tags) >= limit {
				return tags[:limit], nil
			}
		}
	}

	tags, err := s.hotTagRepo.TopVisible(ctx, limit)
	if err != nil {
		return nil, err
	}

	if s.redisClient != nil {
		if data, err := json.Marshal(tags); err == nil {
			if err := s.redisClient.Set(ctx, hotTagCacheKey, data, s.cacheTTL).Err(); err != nil {
				log.Printf("[HotTag] 写缓存失败: %v", err)
			}
		}
	}
	return tags, nil
}
