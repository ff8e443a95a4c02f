package domain

import "errors"

// 配置相关错误
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrInvalidProfile  = errors.New("invalid profile")
	ErrEmptyPattern    = errors.New("empty url pattern")
)

// 令牌相关错误
var (
	ErrNoCachedToken = errors.New("no cached token")
	ErrNoToken       = errors.New("no token extracted")
)

// 数据库相关错误
var (
	ErrDatabaseNotInitialized = errors.New("database not initialized")
	ErrRecordNotFound         = errors.New("record not found")
)

// 手工注入相关错误
var (
	ErrInvalidSelection = errors.New("invalid selection range")
)
