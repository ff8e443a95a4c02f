// Package jsonutil 提供 JSON 响应体的扁平化浏览与敏感值遮蔽
package jsonutil

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// 扁平化深度与条目上限，防止恶意或异常响应撑爆界面
const (
	maxDepth = 10
	maxItems = 100
)

// Field 扁平化结果中的一个叶子字段
type Field struct {
	Path  string `json:"path"`
	Value string `json:"value"`
}

// IsValid 判断文本是否为合法 JSON
func IsValid(body string) bool {
	return gjson.Valid(body)
}

// Flatten 将 JSON 文本展开为 路径 -> 叶子值 的有序列表
// 路径按文档顺序输出，对象用点号分隔，数组用 [i] 下标；
// null 与空字符串叶子跳过，深度超过 maxDepth 的子树不再展开
func Flatten(body string) []Field {
	if !gjson.Valid(body) {
		return nil
	}
	var fields []Field
	walk("", gjson.Parse(body), 0, &fields)
	return fields
}

func walk(prefix string, node gjson.Result, depth int, out *[]Field) {
	if depth > maxDepth || len(*out) >= maxItems {
		return
	}

	switch {
	case node.IsObject():
		node.ForEach(func(key, value gjson.Result) bool {
			path := key.String()
			if prefix != "" {
				path = prefix + "." + path
			}
			walk(path, value, depth+1, out)
			return len(*out) < maxItems
		})
	case node.IsArray():
		i := 0
		node.ForEach(func(_, value gjson.Result) bool {
			walk(fmt.Sprintf("%s[%d]", prefix, i), value, depth+1, out)
			i++
			return len(*out) < maxItems
		})
	default:
		if node.Type == gjson.Null {
			return
		}
		value := node.String()
		if value == "" {
			return
		}
		*out = append(*out, Field{Path: prefix, Value: value})
	}
}

// MaskValues 将 JSON 文本中给定路径上的字符串值替换为 mask 的返回值
// 路径不存在或值不是字符串时跳过；文本不是合法 JSON 时原样返回
func MaskValues(body string, mask func(string) string, paths ...string) string {
	if !gjson.Valid(body) {
		return body
	}
	for _, path := range paths {
		result := gjson.Get(body, path)
		if !result.Exists() || result.Type != gjson.String {
			continue
		}
		masked, err := sjson.Set(body, path, mask(result.String()))
		if err != nil {
			continue
		}
		body = masked
	}
	return body
}
