// Package marker 通过哨兵请求头标记引擎自身发出的请求，防止重认证递归触发
package marker

import "reauth/pkg/domain"

// SkipHeader 哨兵请求头名称，携带该头的请求不会再次触发重认证
const SkipHeader = "X-Reauth-Skip"

// skipValue 哨兵请求头的固定值
const skipValue = "true"

// Mark 在请求上打标，重复打标只保留一份
func Mark(req *domain.Request) {
	if req == nil {
		return
	}
	req.SetHeader(SkipHeader, skipValue)
}

// Unmark 移除请求上的标记
func Unmark(req *domain.Request) {
	if req == nil {
		return
	}
	req.RemoveHeader(SkipHeader)
}

// IsMarked 判断请求是否带有标记，只看哨兵头是否存在
func IsMarked(req *domain.Request) bool {
	if req == nil {
		return false
	}
	return req.HasHeader(SkipHeader)
}
