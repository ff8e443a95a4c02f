// Package app 是组合根：装配配置、日志、存储、服务层与控制接口的生命周期
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"reauth/internal/config"
	"reauth/internal/httpapi"
	"reauth/internal/logger"
	"reauth/internal/storage/db"
	"reauth/internal/storage/model"
	"reauth/internal/storage/repo"
	"reauth/pkg/api"

	"gorm.io/gorm"
	gl "gorm.io/gorm/logger"
)

// App 负责装配并托管重认证引擎的所有组件
type App struct {
	cfg     *config.Config
	log     logger.Logger
	service api.Service

	gdb          *gorm.DB
	settingsRepo *repo.SettingsRepo
	profileRepo  *repo.ProfileRepo
	historyRepo  *repo.InjectionRepo

	httpServer *http.Server
	httpDone   chan struct{}
}

// New 从配置文件创建应用实例，路径为空时使用默认配置
func New(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Level:   cfg.Log.Level,
		Writers: cfg.Log.Writer,
	})
	return &App{cfg: cfg, log: log}, nil
}

// Service 返回装配完成的服务接口，Startup 之前为 nil
func (a *App) Service() api.Service {
	return a.service
}

// Startup 初始化数据库、仓库与服务层，并按配置启动控制接口
func (a *App) Startup(ctx context.Context) error {
	a.log.Info("应用启动")

	gormLogger := db.NewLogger(a.log).LogMode(gl.Warn)
	gdb, err := db.New(db.Options{
		Name:   a.cfg.Sqlite.Db,
		Prefix: a.cfg.Sqlite.Prefix,
		Logger: gormLogger,
	})
	if err != nil {
		a.log.Err(err, "数据库初始化失败")
		return err
	}

	err = db.Migrate(gdb,
		&model.Setting{},
		&model.ProfileRecord{},
		&model.InjectionEventRecord{},
	)
	if err != nil {
		a.log.Err(err, "数据库迁移失败")
		return err
	}

	a.gdb = gdb
	a.settingsRepo = repo.NewSettingsRepo(gdb)
	a.profileRepo = repo.NewProfileRepo(gdb)
	a.historyRepo = repo.NewInjectionRepo(gdb, a.log, repo.InjectionRepoOptions{})
	a.log.Debug("数据持久化层初始化完成")

	svc, err := api.NewService(ctx, api.Config{
		Profiles: a.profileRepo,
		Settings: a.settingsRepo,
		History:  a.historyRepo,
		Logger:   a.log,
	})
	if err != nil {
		a.log.Err(err, "服务层装配失败")
		return err
	}
	a.service = svc

	if a.cfg.API.Listen != "" {
		a.startHTTP(a.cfg.API.Listen)
	}
	return nil
}

// startHTTP 启动控制接口监听
func (a *App) startHTTP(listen string) {
	a.httpServer = &http.Server{
		Addr:              listen,
		Handler:           httpapi.NewServer(a.service),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.httpDone = make(chan struct{})

	go func() {
		defer close(a.httpDone)
		a.log.Info("控制接口监听中", "listen", listen)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Err(err, "控制接口异常退出")
		}
	}()
}

// Shutdown 停止控制接口、服务层与数据库连接
func (a *App) Shutdown(ctx context.Context) {
	a.log.Info("应用关闭中...")

	if a.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("控制接口关闭超时", "error", err)
		}
		cancel()
		<-a.httpDone
	}

	if a.service != nil {
		_ = a.service.Close()
	}

	if a.gdb != nil {
		if sqlDB, err := a.gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	a.log.Info("应用已关闭")
}
