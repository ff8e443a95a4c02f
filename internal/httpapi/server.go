// Package httpapi 提供重认证引擎的控制接口：
// 单一 POST 端点接收 {method, id, params} 信封并按 method 分发
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"reauth/internal/jsonutil"
	"reauth/pkg/api"
	"reauth/pkg/errx"
	"reauth/pkg/model"
	"reauth/pkg/profile"

	"github.com/tidwall/sjson"
)

// Server 控制接口入口
type Server struct {
	svc api.Service
}

// NewServer 创建控制接口服务
func NewServer(svc api.Service) *Server {
	return &Server{svc: svc}
}

// ServeHTTP 处理所有控制接口请求
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidRequest.withError(err))
		return
	}
	res := s.dispatch(r.Context(), &req)
	writeResponse(w, res)
}

// Request 表示通用请求结构
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id,omitempty"`
	Params json.RawMessage `json:"params"`
}

// Response 表示通用响应结构
type Response struct {
	ID     string       `json:"id,omitempty"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorObject `json:"error,omitempty"`
}

// ErrorObject 表示错误信息
type ErrorObject struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ApiError 表示内部错误类型
type ApiError struct {
	Code string
	Err  error
}

func (e ApiError) withError(err error) ApiError {
	return ApiError{Code: e.Code, Err: err}
}

var (
	// ErrInvalidRequest 无效请求
	ErrInvalidRequest = ApiError{Code: "invalid_request"}
	// ErrMethodNotFound 方法不存在
	ErrMethodNotFound = ApiError{Code: "method_not_found"}
	// ErrInvalidParams 参数错误
	ErrInvalidParams = ApiError{Code: "invalid_params"}
	// ErrInternal 内部错误
	ErrInternal = ApiError{Code: "internal"}
)

// profileOnlyParams 仅包含档案标识的参数
type profileOnlyParams struct {
	ProfileID string `json:"profileId"`
}

// profileSaveParams 档案保存参数
type profileSaveParams struct {
	Profile *profile.AuthProfile `json:"profile"`
}

// profileEnableParams 档案启用状态参数
type profileEnableParams struct {
	ProfileID string `json:"profileId"`
	Enabled   bool   `json:"enabled"`
}

// settingsSetParams 设置更新参数，空指针字段保持不变
type settingsSetParams struct {
	GlobalEnabled       *bool  `json:"globalEnabled"`
	RateLimitIntervalMS *int64 `json:"rateLimitIntervalMS"`
}

// cacheClearParams 缓存清理参数
type cacheClearParams struct {
	// Host 目标主机，留空时清空全部缓存
	Host string `json:"host"`
}

// manualInjectParams 手工注入参数，Request 为 base64 编码的请求字节
type manualInjectParams struct {
	ProfileID      string `json:"profileId"`
	Request        []byte `json:"request"`
	SelectionStart int    `json:"selectionStart"`
	SelectionEnd   int    `json:"selectionEnd"`
	RequestURL     string `json:"requestURL"`
}

// jsonFlattenParams JSON 扁平化参数
type jsonFlattenParams struct {
	Body string `json:"body"`
}

// configImportParams 配置导入参数
type configImportParams struct {
	Config *profile.Config `json:"config"`
}

// cacheListResult 缓存概览结果
type cacheListResult struct {
	Entries []model.CacheEntry `json:"entries"`
	Hosts   []model.HostStatus `json:"hosts"`
}

// manualInjectResult 手工注入结果，Request 为 base64 编码的改写后字节
type manualInjectResult struct {
	Request []byte                 `json:"request"`
	Record  *model.InjectionRecord `json:"record"`
}

// dispatch 根据 method 分发请求
func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	var (
		result interface{}
		err    *ErrorObject
	)
	switch req.Method {
	case "profile.list":
		result, err = s.handleProfileList(ctx)
	case "profile.get":
		result, err = s.handleProfileGet(ctx, req.Params)
	case "profile.save":
		result, err = s.handleProfileSave(ctx, req.Params)
	case "profile.delete":
		result, err = s.handleProfileDelete(ctx, req.Params)
	case "profile.enable":
		result, err = s.handleProfileEnable(ctx, req.Params)
	case "settings.get":
		result, err = s.handleSettingsGet(ctx)
	case "settings.set":
		result, err = s.handleSettingsSet(ctx, req.Params)
	case "cache.list":
		result, err = s.handleCacheList(ctx)
	case "cache.clear":
		result, err = s.handleCacheClear(ctx, req.Params)
	case "login.test":
		result, err = s.handleLoginTest(ctx, req.Params)
	case "login.trigger":
		result, err = s.handleLoginTrigger(ctx, req.Params)
	case "manual.inject":
		result, err = s.handleManualInject(ctx, req.Params)
	case "history.list":
		result, err = s.handleHistoryList(ctx, req.Params)
	case "history.clear":
		result, err = s.handleHistoryClear(ctx)
	case "json.flatten":
		result, err = s.handleJSONFlatten(ctx, req.Params)
	case "stats.get":
		result, err = s.handleStatsGet(ctx)
	case "config.export":
		result, err = s.handleConfigExport(ctx)
	case "config.import":
		result, err = s.handleConfigImport(ctx, req.Params)
	default:
		err = toErrorObject(ErrMethodNotFound)
	}
	return &Response{ID: req.ID, Result: result, Error: err}
}

// writeResponse 写出统一响应
func writeResponse(w http.ResponseWriter, res *Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	_ = enc.Encode(res)
}

// writeError 写出错误响应
func writeError(w http.ResponseWriter, apiErr ApiError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	_ = enc.Encode(&Response{Error: toErrorObject(apiErr)})
}

// toErrorObject 转换错误为响应错误对象
func toErrorObject(e ApiError) *ErrorObject {
	msg := e.Code
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return &ErrorObject{Code: e.Code, Message: msg}
}

// serviceError 转换服务层错误，携带业务码的错误原样透出其码值
func serviceError(err error) *ErrorObject {
	if code := errx.CodeOf(err); code != "" {
		return &ErrorObject{Code: string(code), Message: err.Error()}
	}
	return toErrorObject(ErrInternal.withError(err))
}

// handleProfileList 处理档案列表查询
func (s *Server) handleProfileList(ctx context.Context) (interface{}, *ErrorObject) {
	views, err := s.svc.ListProfiles(ctx)
	if err != nil {
		return nil, serviceError(err)
	}
	if views == nil {
		views = []model.ProfileView{}
	}
	return views, nil
}

// handleProfileGet 处理档案查询，返回脱敏后的完整档案 JSON
func (s *Server) handleProfileGet(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	var p profileOnlyParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.ProfileID == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("profileId is required")))
	}
	prof, err := s.svc.GetProfile(ctx, p.ProfileID)
	if err != nil {
		return nil, serviceError(err)
	}
	redacted, err := redactProfileJSON(prof)
	if err != nil {
		return nil, toErrorObject(ErrInternal.withError(err))
	}
	return redacted, nil
}

// handleProfileSave 处理档案保存
func (s *Server) handleProfileSave(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	var p profileSaveParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.Profile == nil {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("profile is required")))
	}
	view, err := s.svc.SaveProfile(ctx, p.Profile)
	if err != nil {
		return nil, serviceError(err)
	}
	return view, nil
}

// handleProfileDelete 处理档案删除
func (s *Server) handleProfileDelete(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	var p profileOnlyParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.ProfileID == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("profileId is required")))
	}
	if err := s.svc.DeleteProfile(ctx, p.ProfileID); err != nil {
		return nil, serviceError(err)
	}
	return nil, nil
}

// handleProfileEnable 处理档案启用状态切换
func (s *Server) handleProfileEnable(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	var p profileEnableParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.ProfileID == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("profileId is required")))
	}
	if err := s.svc.SetProfileEnabled(ctx, p.ProfileID, p.Enabled); err != nil {
		return nil, serviceError(err)
	}
	return nil, nil
}

// handleSettingsGet 处理设置查询
func (s *Server) handleSettingsGet(ctx context.Context) (interface{}, *ErrorObject) {
	_ = ctx
	return s.svc.Settings(), nil
}

// handleSettingsSet 处理设置更新，未提供的字段保持原值
func (s *Server) handleSettingsSet(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	var p settingsSetParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.GlobalEnabled == nil && p.RateLimitIntervalMS == nil {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("nothing to update")))
	}
	if p.GlobalEnabled != nil {
		if err := s.svc.SetGlobalEnabled(ctx, *p.GlobalEnabled); err != nil {
			return nil, serviceError(err)
		}
	}
	if p.RateLimitIntervalMS != nil {
		if err := s.svc.SetRateLimitInterval(ctx, *p.RateLimitIntervalMS); err != nil {
			return nil, serviceError(err)
		}
	}
	return s.svc.Settings(), nil
}

// handleCacheList 处理缓存概览查询
func (s *Server) handleCacheList(ctx context.Context) (interface{}, *ErrorObject) {
	_ = ctx
	entries := s.svc.CacheEntries()
	if entries == nil {
		entries = []model.CacheEntry{}
	}
	hosts := s.svc.HostStatuses()
	if hosts == nil {
		hosts = []model.HostStatus{}
	}
	return cacheListResult{Entries: entries, Hosts: hosts}, nil
}

// handleCacheClear 处理缓存清理
func (s *Server) handleCacheClear(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	_ = ctx
	var p cacheClearParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, toErrorObject(ErrInvalidParams.withError(err))
		}
	}
	if p.Host == "" {
		s.svc.ClearAllCache()
	} else {
		s.svc.ClearCache(p.Host)
	}
	return nil, nil
}

// handleLoginTest 处理登录试跑
func (s *Server) handleLoginTest(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	var p profileOnlyParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.ProfileID == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("profileId is required")))
	}
	result, err := s.svc.TestLogin(ctx, p.ProfileID)
	if err != nil {
		return nil, serviceError(err)
	}
	return result, nil
}

// handleLoginTrigger 处理按需登录
func (s *Server) handleLoginTrigger(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	var p profileOnlyParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.ProfileID == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("profileId is required")))
	}
	entry, err := s.svc.TriggerLogin(ctx, p.ProfileID)
	if err != nil {
		return nil, serviceError(err)
	}
	return entry, nil
}

// handleManualInject 处理手工注入
func (s *Server) handleManualInject(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	var p manualInjectParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.ProfileID == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("profileId is required")))
	}
	modified, rec, err := s.svc.ManualInject(ctx, p.ProfileID, p.Request, p.SelectionStart, p.SelectionEnd, p.RequestURL)
	if err != nil {
		return nil, serviceError(err)
	}
	return manualInjectResult{Request: modified, Record: rec}, nil
}

// handleHistoryList 处理注入历史查询
func (s *Server) handleHistoryList(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	var q model.InjectionQuery
	if len(params) > 0 {
		if err := json.Unmarshal(params, &q); err != nil {
			return nil, toErrorObject(ErrInvalidParams.withError(err))
		}
	}
	page, err := s.svc.History(ctx, q)
	if err != nil {
		return nil, serviceError(err)
	}
	return page, nil
}

// handleHistoryClear 处理注入历史清空
func (s *Server) handleHistoryClear(ctx context.Context) (interface{}, *ErrorObject) {
	if err := s.svc.ClearHistory(ctx); err != nil {
		return nil, serviceError(err)
	}
	return nil, nil
}

// handleJSONFlatten 处理 JSON 扁平化
func (s *Server) handleJSONFlatten(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	_ = ctx
	var p jsonFlattenParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	fields := s.svc.FlattenJSON(p.Body)
	if fields == nil {
		fields = []model.JSONField{}
	}
	return fields, nil
}

// handleStatsGet 处理统计查询
func (s *Server) handleStatsGet(ctx context.Context) (interface{}, *ErrorObject) {
	_ = ctx
	return s.svc.Stats(), nil
}

// handleConfigExport 处理配置导出。
// 导出内容包含明文凭据以支持备份与恢复往返，调用方自行妥善保管。
func (s *Server) handleConfigExport(ctx context.Context) (interface{}, *ErrorObject) {
	cfg, err := s.svc.ExportConfig(ctx)
	if err != nil {
		return nil, serviceError(err)
	}
	return cfg, nil
}

// handleConfigImport 处理配置导入
func (s *Server) handleConfigImport(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	var p configImportParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.Config == nil {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("config is required")))
	}
	if err := s.svc.ImportConfig(ctx, p.Config); err != nil {
		return nil, serviceError(err)
	}
	return nil, nil
}

// redactProfileJSON 序列化档案并遮蔽凭据：
// password 字段替换为掩码；原始登录模板中出现的明文密码同样替换
func redactProfileJSON(p *profile.AuthProfile) (json.RawMessage, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	body := jsonutil.MaskValues(string(raw), model.MaskToken, "password")
	if p.Password != "" && strings.Contains(p.RawRequest, p.Password) {
		masked := strings.ReplaceAll(p.RawRequest, p.Password, model.MaskToken(p.Password))
		if b, err := sjson.Set(body, "rawRequest", masked); err == nil {
			body = b
		}
	}
	return json.RawMessage(body), nil
}
