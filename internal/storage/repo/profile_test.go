package repo_test

import (
	"context"
	"errors"
	"testing"

	"reauth/internal/storage/db"
	"reauth/internal/storage/model"
	"reauth/internal/storage/repo"
	"reauth/pkg/domain"
	"reauth/pkg/profile"
)

// setupProfileTestDB 创建用于 ProfileRepo 测试的内存数据库。
func setupProfileTestDB(t *testing.T) *repo.ProfileRepo {
	gdb, err := db.New(db.Options{
		Path:   ":memory:",
		Prefix: "test_",
	})
	if err != nil {
		t.Fatalf("创建内存数据库失败: %v", err)
	}

	err = db.Migrate(gdb, &model.ProfileRecord{})
	if err != nil {
		t.Fatalf("迁移数据库失败: %v", err)
	}

	return repo.NewProfileRepo(gdb)
}

func newTestProfile(pattern string) *profile.AuthProfile {
	p := profile.NewProfile(pattern)
	p.LoginURL = "https://api.example.com/auth/login"
	p.LoginBody = `{"username":"${username}","password":"${password}"}`
	p.Username = "admin"
	p.Password = "secret"
	return p
}

// TestProfileRepo_UpsertCreateAndUpdate 测试按业务 ID 的新增与覆盖。
func TestProfileRepo_UpsertCreateAndUpdate(t *testing.T) {
	r := setupProfileTestDB(t)
	ctx := context.Background()

	p := newTestProfile("api.example.com/**")
	record, err := r.Upsert(ctx, p)
	if err != nil {
		t.Fatalf("首次保存失败: %v", err)
	}
	if record.ProfileID != p.ID {
		t.Errorf("业务 ID 预期 %s，实际 %s", p.ID, record.ProfileID)
	}
	if record.URLPattern != "api.example.com/**" {
		t.Errorf("URL 模式预期 api.example.com/**，实际 %s", record.URLPattern)
	}

	// 同一业务 ID 再次保存应覆盖而非新增
	p.URLPattern = "api.example.com/v2/**"
	updated, err := r.Upsert(ctx, p)
	if err != nil {
		t.Fatalf("覆盖保存失败: %v", err)
	}
	if updated.ID != record.ID {
		t.Errorf("覆盖保存应复用数据库主键 %d，实际 %d", record.ID, updated.ID)
	}
	if updated.URLPattern != "api.example.com/v2/**" {
		t.Errorf("URL 模式未更新，实际 %s", updated.URLPattern)
	}

	records, err := r.List(ctx)
	if err != nil {
		t.Fatalf("列出档案失败: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("预期 1 条记录，实际 %d 条", len(records))
	}
}

// TestProfileRepo_GetByProfileID_NotFound 测试不存在的业务 ID 返回 nil 而非错误。
func TestProfileRepo_GetByProfileID_NotFound(t *testing.T) {
	r := setupProfileTestDB(t)

	record, err := r.GetByProfileID(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("查询不应报错: %v", err)
	}
	if record != nil {
		t.Errorf("预期 nil 记录，实际 %+v", record)
	}
}

// TestProfileRepo_SetEnabled 测试启用状态同步更新记录列与 JSON 内容。
func TestProfileRepo_SetEnabled(t *testing.T) {
	r := setupProfileTestDB(t)
	ctx := context.Background()

	p := newTestProfile("app.example.com/**")
	if _, err := r.Upsert(ctx, p); err != nil {
		t.Fatalf("保存失败: %v", err)
	}

	if err := r.SetEnabled(ctx, p.ID, false); err != nil {
		t.Fatalf("切换启用状态失败: %v", err)
	}

	record, err := r.GetByProfileID(ctx, p.ID)
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if record.Enabled {
		t.Error("记录列 enabled 应为 false")
	}
	stored, err := r.ToProfile(record)
	if err != nil {
		t.Fatalf("解析档案失败: %v", err)
	}
	if stored.Enabled {
		t.Error("JSON 内容 enabled 应为 false")
	}

	// 不存在的业务 ID
	if err := r.SetEnabled(ctx, "missing", true); !errors.Is(err, domain.ErrProfileNotFound) {
		t.Errorf("预期 ErrProfileNotFound，实际 %v", err)
	}
}

// TestProfileRepo_DeleteByProfileID 测试删除语义与重复删除报错。
func TestProfileRepo_DeleteByProfileID(t *testing.T) {
	r := setupProfileTestDB(t)
	ctx := context.Background()

	p := newTestProfile("del.example.com/**")
	if _, err := r.Upsert(ctx, p); err != nil {
		t.Fatalf("保存失败: %v", err)
	}

	if err := r.DeleteByProfileID(ctx, p.ID); err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	if err := r.DeleteByProfileID(ctx, p.ID); !errors.Is(err, domain.ErrProfileNotFound) {
		t.Errorf("重复删除预期 ErrProfileNotFound，实际 %v", err)
	}
}

// TestProfileRepo_LoadAll 测试启动加载时档案字段完整往返。
func TestProfileRepo_LoadAll(t *testing.T) {
	r := setupProfileTestDB(t)
	ctx := context.Background()

	p1 := newTestProfile("a.example.com/**")
	p2 := newTestProfile("b.example.com/api/**")
	p2.Username = "operator"
	for _, p := range []*profile.AuthProfile{p1, p2} {
		if _, err := r.Upsert(ctx, p); err != nil {
			t.Fatalf("保存 %s 失败: %v", p.URLPattern, err)
		}
	}

	profiles, err := r.LoadAll(ctx)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("预期 2 个档案，实际 %d 个", len(profiles))
	}

	byPattern := make(map[string]*profile.AuthProfile, len(profiles))
	for _, p := range profiles {
		byPattern[p.URLPattern] = p
	}
	got, ok := byPattern["b.example.com/api/**"]
	if !ok {
		t.Fatal("缺少 b.example.com/api/** 档案")
	}
	if got.Username != "operator" {
		t.Errorf("用户名预期 operator，实际 %s", got.Username)
	}
	if got.LoginURL != "https://api.example.com/auth/login" {
		t.Errorf("登录地址未往返，实际 %s", got.LoginURL)
	}
}

// TestProfileRepo_CreateRejectsInvalid 测试非法档案在入库前被拒绝。
func TestProfileRepo_CreateRejectsInvalid(t *testing.T) {
	r := setupProfileTestDB(t)
	ctx := context.Background()

	noID := newTestProfile("x.example.com/**")
	noID.ID = ""
	if _, err := r.Create(ctx, noID); !errors.Is(err, domain.ErrInvalidProfile) {
		t.Errorf("缺少 ID 预期 ErrInvalidProfile，实际 %v", err)
	}

	empty := newTestProfile("  ")
	if _, err := r.Create(ctx, empty); !errors.Is(err, domain.ErrEmptyPattern) {
		t.Errorf("空模式预期 ErrEmptyPattern，实际 %v", err)
	}
}
