// Package ratelimit 按目标主机对登录尝试做最小间隔限速
package ratelimit

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"reauth/pkg/profile"
)

// Limiter 登录限速器
// 尝试时间按主机记录在并发安全映射中，间隔全局可变并即时生效
type Limiter struct {
	intervalMS atomic.Int64
	attempts   sync.Map // host -> 最近一次尝试的 Unix 毫秒 (int64)
}

// New 创建限速器实例，intervalMS 非正时取默认间隔
func New(intervalMS int64) *Limiter {
	l := &Limiter{}
	l.SetInterval(intervalMS)
	return l
}

// SetInterval 设置登录最小间隔（毫秒），对后续判定立即生效
func (l *Limiter) SetInterval(intervalMS int64) {
	if intervalMS <= 0 {
		intervalMS = profile.DefaultRateLimitIntervalMS
	}
	l.intervalMS.Store(intervalMS)
}

// Interval 返回当前登录最小间隔（毫秒）
func (l *Limiter) Interval() int64 {
	return l.intervalMS.Load()
}

// IsAllowed 判断主机当前是否允许发起登录
func (l *Limiter) IsAllowed(host string) bool {
	last, ok := l.attempts.Load(host)
	if !ok {
		return true
	}
	return time.Now().UnixMilli()-last.(int64) >= l.intervalMS.Load()
}

// RecordAttempt 记录一次登录尝试
// 必须在登录网络调用发出之前同步调用，避免慢登录期间重复放行
func (l *Limiter) RecordAttempt(host string) {
	l.attempts.Store(host, time.Now().UnixMilli())
}

// RemainingWait 返回距离下次允许登录的剩余等待时间，最小为 0
func (l *Limiter) RemainingWait(host string) time.Duration {
	last, ok := l.attempts.Load(host)
	if !ok {
		return 0
	}
	remaining := l.intervalMS.Load() - (time.Now().UnixMilli() - last.(int64))
	if remaining < 0 {
		return 0
	}
	return time.Duration(remaining) * time.Millisecond
}

// LastAttempt 返回主机最近一次尝试的 Unix 毫秒时间戳，从未尝试时返回 0
func (l *Limiter) LastAttempt(host string) int64 {
	last, ok := l.attempts.Load(host)
	if !ok {
		return 0
	}
	return last.(int64)
}

// Hosts 返回记录过登录尝试的主机列表，按字典序排序
func (l *Limiter) Hosts() []string {
	var hosts []string
	l.attempts.Range(func(key, _ any) bool {
		hosts = append(hosts, key.(string))
		return true
	})
	sort.Strings(hosts)
	return hosts
}

// Clear 清除单个主机的尝试记录
func (l *Limiter) Clear(host string) {
	l.attempts.Delete(host)
}

// ClearAll 清除全部尝试记录
func (l *Limiter) ClearAll() {
	l.attempts.Range(func(key, _ any) bool {
		l.attempts.Delete(key)
		return true
	})
}
