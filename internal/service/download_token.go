// file: internal/service/download_token.go
package service

import (
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// DownloadTokenStore 管理CSV下载端点使用的一次性防伪令牌。
// 令牌由管理端在发起下载前申领，下载时校验并立即作废；过期令牌由缓存自动清理。
type DownloadTokenStore struct {
	tokens *cache.Cache
	ttl    time.Duration
}

// NewDownloadTokenStore 创建一个新的令牌存储，ttl 为令牌有效期。
func NewDownloadTokenStore(ttl time.Duration) *DownloadTokenStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute // 默认值
	}
	return &DownloadTokenStore{
		tokens: cache.New(ttl, 10*time.Minute),
		ttl:    ttl,
	}
}

// TTL 返回令牌有效期。
func (s *DownloadTokenStore) TTL() time.Duration { return s.ttl }

// Issue 为指定用户签发一个新的一次性下载令牌。
func (s *DownloadTokenStore) Issue(userID int64) string {
	token := uuid.NewString()
	s.tokens.Set(token, userID, cache.DefaultExpiration)
	log.Printf("信息: [DownloadToken] 已为用户 %d 签发下载令牌 (有效期 %v)。", userID, s.ttl)
	return token
}

// Redeem 校验并消费令牌。令牌必须存在、未过期且归属同一用户；
// 校验通过即删除，同一令牌不可能被使用第二次。
func (s *DownloadTokenStore) Redeem(token string, userID int64) bool {
	if token == "" {
		return false
	}
	val, found := s.tokens.Get(token)
	if !found {
		return false
	}
	s.tokens.Delete(token)
	owner, ok := val.(int64)
	if !ok || owner != userID {
		log.Printf("警告: [DownloadToken] 用户 %d 尝试使用不属于自己的下载令牌。", userID)
		return false
	}
	return true
}
