package repo

import (
	"context"
	"sync"
	"time"

	"reauth/internal/logger"
	dbmodel "reauth/internal/storage/model"
	pkgmodel "reauth/pkg/model"

	"gorm.io/gorm"
)

// InjectionRepoOptions 注入历史仓库参数
type InjectionRepoOptions struct {
	// BatchSize 触发立即刷盘的缓冲条数
	BatchSize int
	// FlushInterval 定时刷盘间隔
	FlushInterval time.Duration
	// MaxBufferSize 缓冲区上限，超出后丢弃最旧的记录
	MaxBufferSize int
}

// InjectionRepo 手工注入历史仓库（异步批量写入数据库）
type InjectionRepo struct {
	BaseRepository[dbmodel.InjectionEventRecord]
	log       logger.Logger
	buffer    []dbmodel.InjectionEventRecord
	bufferMu  sync.Mutex
	batchSize int
	maxBuffer int
	interval  time.Duration
	flushCh   chan struct{}
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewInjectionRepo 创建注入历史仓库实例
func NewInjectionRepo(db *gorm.DB, l logger.Logger, opts InjectionRepoOptions) *InjectionRepo {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	if opts.MaxBufferSize <= 0 {
		opts.MaxBufferSize = 1000
	}
	if l == nil {
		l = logger.NewNop()
	}

	r := &InjectionRepo{
		BaseRepository: *NewBaseRepository[dbmodel.InjectionEventRecord](db),
		log:            l,
		buffer:         make([]dbmodel.InjectionEventRecord, 0, opts.BatchSize*2),
		batchSize:      opts.BatchSize,
		maxBuffer:      opts.MaxBufferSize,
		interval:       opts.FlushInterval,
		flushCh:        make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
	}
	// 启动异步写入协程
	r.wg.Add(1)
	go r.asyncWriter()
	return r
}

// asyncWriter 异步批量写入协程
func (r *InjectionRepo) asyncWriter() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			// 停止前刷新剩余数据
			r.flush()
			return
		case <-ticker.C:
			r.flush()
		case <-r.flushCh:
			r.flush()
		}
	}
}

// flush 刷新缓冲区到数据库
func (r *InjectionRepo) flush() {
	r.bufferMu.Lock()
	if len(r.buffer) == 0 {
		r.bufferMu.Unlock()
		return
	}
	toWrite := r.buffer
	r.buffer = make([]dbmodel.InjectionEventRecord, 0, r.batchSize*2)
	r.bufferMu.Unlock()

	if err := r.Db.CreateInBatches(toWrite, 100).Error; err != nil {
		r.log.Err(err, "注入历史写入失败", "count", len(toWrite))
	}
}

// Stop 停止异步写入并刷新剩余数据
func (r *InjectionRepo) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

// Record 记录一次手工注入（异步写入数据库）
func (r *InjectionRepo) Record(rec *pkgmodel.InjectionRecord) {
	record := dbmodel.InjectionEventRecord{
		RecordID:       rec.ID,
		RequestURL:     rec.RequestURL,
		Pattern:        rec.Pattern,
		SelectionStart: rec.SelectionStart,
		SelectionEnd:   rec.SelectionEnd,
		OriginalText:   rec.OriginalText,
		TokenPreview:   rec.TokenPreview,
		BeforeText:     rec.Before,
		AfterText:      rec.After,
		Timestamp:      rec.Timestamp,
		CreatedAt:      time.Now(),
	}

	r.bufferMu.Lock()
	if len(r.buffer) >= r.maxBuffer {
		// 缓冲区已满，丢弃最旧的一条
		r.buffer = r.buffer[1:]
	}
	r.buffer = append(r.buffer, record)
	needFlush := len(r.buffer) >= r.batchSize
	r.bufferMu.Unlock()

	if needFlush {
		select {
		case r.flushCh <- struct{}{}:
		default:
		}
	}
}

// InjectionQuery 注入历史查询条件
type InjectionQuery struct {
	Pattern   string
	URL       string
	StartTime int64
	EndTime   int64
	Offset    int
	Limit     int
}

// Query 查询注入历史，按时间倒序返回
func (r *InjectionRepo) Query(ctx context.Context, opts InjectionQuery) ([]dbmodel.InjectionEventRecord, int64, error) {
	query := r.Db.WithContext(ctx).Model(&dbmodel.InjectionEventRecord{})

	if opts.Pattern != "" {
		query = query.Where("pattern = ?", opts.Pattern)
	}
	if opts.URL != "" {
		query = query.Where("request_url LIKE ?", "%"+opts.URL+"%")
	}
	if opts.StartTime > 0 {
		query = query.Where("timestamp >= ?", opts.StartTime)
	}
	if opts.EndTime > 0 {
		query = query.Where("timestamp <= ?", opts.EndTime)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}

	var records []dbmodel.InjectionEventRecord
	err := query.Order("timestamp DESC").
		Offset(opts.Offset).
		Limit(opts.Limit).
		Find(&records).Error

	return records, total, err
}

// ToRecord 将数据库记录转换为对外视图
func (r *InjectionRepo) ToRecord(record *dbmodel.InjectionEventRecord) *pkgmodel.InjectionRecord {
	return &pkgmodel.InjectionRecord{
		ID:             record.RecordID,
		RequestURL:     record.RequestURL,
		Pattern:        record.Pattern,
		SelectionStart: record.SelectionStart,
		SelectionEnd:   record.SelectionEnd,
		OriginalText:   record.OriginalText,
		TokenPreview:   record.TokenPreview,
		Before:         record.BeforeText,
		After:          record.AfterText,
		Timestamp:      record.Timestamp,
	}
}

// DeleteOldRecords 删除指定时间之前的记录（数据清理）
func (r *InjectionRepo) DeleteOldRecords(ctx context.Context, beforeTimestamp int64) (int64, error) {
	result := r.Db.WithContext(ctx).Where("timestamp < ?", beforeTimestamp).Delete(&dbmodel.InjectionEventRecord{})
	return result.RowsAffected, result.Error
}

// CleanupOldRecords 根据保留天数清理历史记录
func (r *InjectionRepo) CleanupOldRecords(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays).UnixMilli()
	return r.DeleteOldRecords(ctx, cutoff)
}

// ClearAll 清空所有注入历史
func (r *InjectionRepo) ClearAll(ctx context.Context) error {
	r.bufferMu.Lock()
	r.buffer = r.buffer[:0]
	r.bufferMu.Unlock()
	return r.Db.WithContext(ctx).Where("1 = 1").Delete(&dbmodel.InjectionEventRecord{}).Error
}
