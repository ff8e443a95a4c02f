package model

type ProfileID string

type ProfileView struct {
	ID          string `json:"id"`
	Enabled     bool   `json:"enabled"`
	URLPattern  string `json:"urlPattern"`
	LoginURL    string `json:"loginURL"`
	LoginMethod string `json:"loginMethod"`
	AutoExtract bool   `json:"autoExtract"`
	AutoInject  bool   `json:"autoInject"`
	HasTemplate bool   `json:"hasTemplate"`
	UpdatedAt   int64  `json:"updatedAt"`
}

type CacheEntry struct {
	Host       string `json:"host"`
	TokenMask  string `json:"tokenMask"`
	SourceKind string `json:"sourceKind"`
	SourceName string `json:"sourceName"`
	CachedAt   int64  `json:"cachedAt"`
}

type HostStatus struct {
	Host        string `json:"host"`
	HasToken    bool   `json:"hasToken"`
	LastAttempt int64  `json:"lastAttempt"`
}

type LoginTestResult struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	TokenMask  string `json:"tokenMask"`
	SourceKind string `json:"sourceKind"`
	SourceName string `json:"sourceName"`
	// BodyPreview 登录响应体预览，已知令牌字段做过掩码处理
	BodyPreview string `json:"bodyPreview,omitempty"`
	Error       string `json:"error"`
	DurationMS  int64  `json:"durationMS"`
}

type InjectionRecord struct {
	ID             string `json:"id"`
	RequestURL     string `json:"requestURL"`
	Pattern        string `json:"pattern"`
	SelectionStart int    `json:"selectionStart"`
	SelectionEnd   int    `json:"selectionEnd"`
	OriginalText   string `json:"originalText"`
	TokenPreview   string `json:"tokenPreview"`
	Before         string `json:"before"`
	After          string `json:"after"`
	Timestamp      int64  `json:"timestamp"`
}

type EngineStats struct {
	Unauthorized int64            `json:"unauthorized"`
	Logins       int64            `json:"logins"`
	LoginFailed  int64            `json:"loginFailed"`
	CacheHits    int64            `json:"cacheHits"`
	Injections   int64            `json:"injections"`
	RateLimited  int64            `json:"rateLimited"`
	ByHost       map[string]int64 `json:"byHost"`
}

// EngineSettings 引擎全局设置
type EngineSettings struct {
	GlobalEnabled       bool  `json:"globalEnabled"`
	RateLimitIntervalMS int64 `json:"rateLimitIntervalMS"`
}

// InjectionQuery 注入历史查询条件，零值字段不参与过滤
type InjectionQuery struct {
	Pattern   string `json:"pattern,omitempty"`
	URL       string `json:"url,omitempty"`
	StartTime int64  `json:"startTime,omitempty"`
	EndTime   int64  `json:"endTime,omitempty"`
	Offset    int    `json:"offset,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// InjectionHistory 注入历史查询结果页，按时间倒序
type InjectionHistory struct {
	Items []InjectionRecord `json:"items"`
	Total int64             `json:"total"`
}

// JSONField 扁平化 JSON 中的一个叶子字段
type JSONField struct {
	Path  string `json:"path"`
	Value string `json:"value"`
}

// MaskToken 对令牌做掩码展示，仅保留前后各 4 个字符。
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}

// PreviewToken 生成令牌预览，超过 30 字符时截断并追加省略号。
func PreviewToken(token string) string {
	if len(token) > 30 {
		return token[:27] + "..."
	}
	return token
}
