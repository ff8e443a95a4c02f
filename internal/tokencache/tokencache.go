// Package tokencache 按目标主机缓存最近一次提取的令牌
//
// 条目只在显式清除或缓存令牌重试仍返回 401 时移除，没有 TTL，
// 过期只能由下一次未授权响应被动发现。
package tokencache

import (
	"sort"
	"sync"
	"time"

	"reauth/pkg/domain"
)

// Entry 缓存条目
type Entry struct {
	Token    domain.ExtractedToken `json:"token"`
	CachedAt int64                 `json:"cachedAt"` // Unix 毫秒
}

// Cache 令牌缓存，读写并发安全，可在不持有宿主锁的路径上查询
type Cache struct {
	entries sync.Map // host -> Entry
}

// New 创建空缓存
func New() *Cache {
	return &Cache{}
}

// Get 返回主机的缓存令牌
func (c *Cache) Get(host string) (domain.ExtractedToken, bool) {
	v, ok := c.entries.Load(host)
	if !ok {
		return domain.ExtractedToken{}, false
	}
	return v.(Entry).Token, true
}

// GetEntry 返回主机的完整缓存条目（含写入时间）
func (c *Cache) GetEntry(host string) (Entry, bool) {
	v, ok := c.entries.Load(host)
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// Put 写入或覆盖主机的令牌
func (c *Cache) Put(host string, token domain.ExtractedToken) {
	c.entries.Store(host, Entry{
		Token:    token,
		CachedAt: time.Now().UnixMilli(),
	})
}

// Delete 移除单个主机的令牌
func (c *Cache) Delete(host string) {
	c.entries.Delete(host)
}

// Clear 清空全部缓存
func (c *Cache) Clear() {
	c.entries.Range(func(key, _ any) bool {
		c.entries.Delete(key)
		return true
	})
}

// Hosts 返回当前持有令牌的主机列表，按字典序排序
func (c *Cache) Hosts() []string {
	var hosts []string
	c.entries.Range(func(key, _ any) bool {
		hosts = append(hosts, key.(string))
		return true
	})
	sort.Strings(hosts)
	return hosts
}

// Len 返回缓存条目数量
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
