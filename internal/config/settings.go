package config

import "reauth/pkg/profile"

// DefaultSettings 定义运行时设置的默认值
type DefaultSettings struct {
	GlobalEnabled       bool
	RateLimitIntervalMS int64
}

// GetDefaultSettings 返回默认设置
func GetDefaultSettings() DefaultSettings {
	return DefaultSettings{
		GlobalEnabled:       true,
		RateLimitIntervalMS: profile.DefaultRateLimitIntervalMS,
	}
}
