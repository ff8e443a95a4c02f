// Package matcher 根据 URL 模式为入站请求挑选治理配置
//
// 模式语法为 hostGlob[/pathGlob]：主机段支持 *. 前缀通配，
// 路径段支持 /**（任意路径）、prefix/*（至多一个附加段）、
// prefix/**（前缀匹配），其余按精确字符串比较。
// 多个模式同时命中时按特异性分值取最高者，分值相同时先注册者优先。
package matcher

import (
	"strings"
	"sync"

	"reauth/pkg/domain"
	"reauth/pkg/profile"
)

// Matcher 配置匹配器，持有当前生效的配置列表
type Matcher struct {
	mu       sync.RWMutex
	profiles []*profile.AuthProfile
}

// New 创建匹配器实例
func New(profiles []*profile.AuthProfile) *Matcher {
	return &Matcher{profiles: profiles}
}

// Update 整体替换配置列表
func (m *Matcher) Update(profiles []*profile.AuthProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles = profiles
}

// Profiles 返回当前配置列表的快照
func (m *Matcher) Profiles() []*profile.AuthProfile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*profile.AuthProfile, len(m.profiles))
	copy(out, m.profiles)
	return out
}

// Find 返回命中 (host, path) 的最高特异性配置，无命中时返回 nil
// 禁用或模式为空的配置不参与匹配
func (m *Matcher) Find(host, path string) *profile.AuthProfile {
	m.mu.RLock()
	profiles := m.profiles
	m.mu.RUnlock()

	host = strings.ToLower(host)
	if path == "" {
		path = "/"
	}

	var best *profile.AuthProfile
	bestScore := -1
	for _, p := range profiles {
		if p == nil || !p.Enabled || strings.TrimSpace(p.URLPattern) == "" {
			continue
		}
		if !Matches(p.URLPattern, host, path) {
			continue
		}
		// 严格大于才替换，同分时保留先注册者
		if score := Specificity(p.URLPattern); score > bestScore {
			best = p
			bestScore = score
		}
	}
	return best
}

// FindURL 按绝对 URL 匹配配置
func (m *Matcher) FindURL(rawURL string) *profile.AuthProfile {
	return m.Find(domain.HostOf(rawURL), domain.PathOf(rawURL))
}

// FindByLoginURL 返回登录地址与给定 URL 精确相等的配置。
// 禁用的配置同样参与比对：用户重放已配置的登录请求时一律放行。
func (m *Matcher) FindByLoginURL(rawURL string) *profile.AuthProfile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.profiles {
		if p != nil && p.LoginURL != "" && p.LoginURL == rawURL {
			return p
		}
	}
	return nil
}

// Matches 判断 (host, path) 是否命中给定模式
func Matches(pattern, host, path string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}

	hostPattern := pattern
	pathPattern := ""
	if idx := strings.Index(pattern, "/"); idx > 0 {
		hostPattern = pattern[:idx]
		pathPattern = pattern[idx:]
	}

	if !matchHost(hostPattern, host) {
		return false
	}
	return matchPath(pathPattern, path)
}

// matchHost 主机段匹配，大小写不敏感
// *.suffix 同时命中子域与裸域本身
func matchHost(pattern, host string) bool {
	pattern = strings.ToLower(pattern)
	host = strings.ToLower(host)
	if strings.HasPrefix(pattern, "*.") {
		base := pattern[2:]
		return host == base || strings.HasSuffix(host, "."+base)
	}
	return host == pattern
}

// matchPath 路径段匹配
// 缺省与 /** 命中任意路径；prefix/* 允许至多一个附加段；
// prefix/** 做前缀匹配；其余精确比较
func matchPath(pattern, path string) bool {
	if pattern == "" || pattern == "/**" {
		return true
	}
	if strings.HasSuffix(pattern, "/**") {
		prefix := pattern[:len(pattern)-3]
		return strings.HasPrefix(path, prefix)
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := pattern[:len(pattern)-2]
		if !strings.HasPrefix(path, prefix) {
			return false
		}
		rest := path[len(prefix):]
		if rest == "" || rest == "/" {
			return true
		}
		// 前缀后最多再允许一个路径段
		rest = strings.TrimPrefix(rest, "/")
		return !strings.Contains(rest, "/")
	}
	return path == pattern
}

// Specificity 计算模式的特异性分值，分值越高越优先
// 公式：模式长度为基数；含路径部分 +100；含宽泛 /** 通配 -50；主机段无通配 +50
// 该公式并非全序，罕见模式组合下可能出现反直觉排名，为兼容性原样保留
func Specificity(pattern string) int {
	score := len(pattern)
	if strings.Contains(pattern, "/") {
		score += 100
	}
	if strings.Contains(pattern, "/**") {
		score -= 50
	}
	if !strings.HasPrefix(pattern, "*.") {
		score += 50
	}
	return score
}
