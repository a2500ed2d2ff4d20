package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TableLoop 单表的轮询循环。状态机：Idle → Fetching → Diffing → Dispatching →
// Committing → Idle；任一阶段失败回到 Idle，已提交状态不受影响，下个周期从头重算。
// 同一张表同时最多一个周期在执行，定时器触发时如果上一周期未结束则跳过本次。
type TableLoop struct {
	opts       TableOptions
	db         Database
	index      Index
	dispatcher *Dispatcher
	store      StateStore
	onSummary  func(CycleSummary)

	mu      sync.Mutex
	running bool
	state   *TableSyncState
}

// NewTableLoop 创建单表循环；配置了状态存储时尝试恢复上次提交的状态
func NewTableLoop(opts TableOptions, db Database, index Index, store StateStore, onSummary func(CycleSummary)) *TableLoop {
	if opts.Index == "" {
		opts.Index = opts.Table
	}
	loop := &TableLoop{
		opts:       opts,
		db:         db,
		index:      index,
		dispatcher: NewDispatcher(index, opts),
		store:      store,
		onSummary:  onSummary,
		state:      NewTableSyncState(),
	}
	if store != nil {
		state, err := store.LoadState(opts.Table)
		switch {
		case err != nil:
			zap.S().Warnf("表 %s 恢复同步状态失败，按首次全量处理: %v", opts.Table, err)
		case state != nil:
			loop.state = state
			zap.S().Infof("表 %s 恢复同步状态成功（%d 条指纹，上次同步 %s）",
				opts.Table, len(state.Fingerprints), state.LastSyncedAt.Format(time.DateTime))
		}
	}
	return loop
}

// State 返回当前已提交的同步状态（测试与诊断用）
func (l *TableLoop) State() *TableSyncState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Run 启动轮询循环：固定间隔或 cron 表达式二选一，收到取消信号后
// 不再开启新周期，进行中的周期在阶段边界自行结束。
func (l *TableLoop) Run(ctx context.Context) error {
	zap.S().Infof("表 %s 同步循环启动（索引 %s）", l.opts.Table, l.opts.Index)

	if l.opts.RunOnStart {
		zap.S().Infof("表 %s 启动时立即执行一次同步", l.opts.Table)
		l.SyncOnce(ctx)
	}

	if l.opts.Cron != "" {
		return l.runCron(ctx)
	}
	return l.runTicker(ctx)
}

func (l *TableLoop) runTicker(ctx context.Context) error {
	interval := l.opts.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.SyncOnce(ctx)
		case <-ctx.Done():
			zap.S().Infof("表 %s 同步循环已停止", l.opts.Table)
			return nil
		}
	}
}

func (l *TableLoop) runCron(ctx context.Context) error {
	expr := strings.TrimSpace(l.opts.Cron)
	parts := strings.Fields(expr)
	var c *cron.Cron
	switch len(parts) {
	case 6:
		c = cron.New(cron.WithSeconds())
	case 5:
		c = cron.New()
	default:
		return errors.Errorf("无效的 cron 表达式格式，应为5位或6位: %s", expr)
	}

	entryID, err := c.AddFunc(expr, func() {
		l.SyncOnce(ctx)
	})
	if err != nil {
		return errors.Wrapf(err, "解析 CRON 表达式失败: %s", expr)
	}
	zap.S().Infof("表 %s CRON 任务已注册 (EntryID: %d, 表达式: %s)", l.opts.Table, entryID, expr)

	c.Start()
	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	zap.S().Infof("表 %s CRON 调度器已停止", l.opts.Table)
	return nil
}

// SyncOnce 执行一个完整同步周期。上一周期未结束时直接跳过（不排队、不并发）。
func (l *TableLoop) SyncOnce(ctx context.Context) CycleSummary {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		zap.S().Warnf("表 %s 上一周期尚未结束，本次触发跳过", l.opts.Table)
		return CycleSummary{
			Table:      l.opts.Table,
			Index:      l.opts.Index,
			Outcome:    OutcomeSkipped,
			FinishedAt: time.Now(),
		}
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	summary := l.runCycle(ctx)
	if l.onSummary != nil {
		l.onSummary(summary)
	}
	return summary
}

// runCycle 一个周期：读取 → 对比 → 下发 → 提交。
// 只有全部批次下发成功才替换同步状态，失败周期不留任何半成品。
func (l *TableLoop) runCycle(ctx context.Context) CycleSummary {
	start := time.Now()
	summary := CycleSummary{Table: l.opts.Table, Index: l.opts.Index}

	fail := func(err error) CycleSummary {
		summary.Outcome = OutcomeFailed
		summary.Error = err.Error()
		summary.Duration = time.Since(start)
		summary.FinishedAt = time.Now()
		zap.S().Errorf("表 %s 同步周期失败（耗时 %v）: %v", l.opts.Table, summary.Duration, err)
		return summary
	}

	// Fetching
	schema, err := l.db.GetSchema(ctx, l.opts.Table)
	if err != nil {
		return fail(errors.Wrap(err, "读取表结构失败"))
	}
	rows, err := l.db.GetRows(ctx, l.opts.Table)
	if err != nil {
		return fail(errors.Wrap(err, "读取表数据失败"))
	}
	if ctx.Err() != nil {
		return fail(Transient(errors.Wrap(ctx.Err(), "同步周期在读取阶段后被取消")))
	}

	// Diffing
	change := Classify(l.state.Schema, schema)
	summary.SchemaChange = change.Kind
	if change.Kind != SchemaUnchanged {
		zap.S().Infof("表 %s 检测到结构变化: %s（新增列 %v，删除列 %v）",
			l.opts.Table, change.Kind, change.Added, change.Removed)
	}

	// 配置指定的主键优先，未指定时用内省发现的主键
	pk := l.opts.PrimaryKey
	if pk == "" {
		pk = schema.PrimaryKey
	}
	if pk == "" {
		return fail(Permanent(errors.Errorf("表 %s 没有可用的主键列", l.opts.Table)))
	}

	current, skipped, err := l.fingerprintRows(rows, pk)
	if err != nil {
		return fail(err)
	}
	summary.SkippedRows = skipped

	previous := l.state.Fingerprints
	if change.RequiresFullReindex() {
		// 全量重建：丢弃全部历史指纹，当前所有行视为新增
		previous = nil
	}
	diff := Diff(previous, current)
	if ctx.Err() != nil {
		return fail(Transient(errors.Wrap(ctx.Err(), "同步周期在对比阶段后被取消")))
	}

	// Dispatching：索引配置变更先于行批次，避免文档引用索引尚未认识的字段。
	// 停机信号只在阶段边界生效，进入下发阶段后批次全部跑完，不丢半截
	dispatchCtx := context.WithoutCancel(ctx)
	if change.RequiresFullReindex() {
		if err := l.index.RecreateIndex(dispatchCtx, l.opts.Index, pk); err != nil {
			return fail(errors.Wrap(err, "重建索引失败"))
		}
	} else if change.RequiresSettingsUpdate() {
		if err := l.index.ConfigureIndex(dispatchCtx, l.opts.Index, change.Added, change.Removed, pk); err != nil {
			return fail(errors.Wrap(err, "调整索引字段配置失败"))
		}
	}

	result, err := l.dispatcher.Dispatch(dispatchCtx, l.opts.Index, diff)
	summary.Created = result.Created
	summary.Updated = result.Updated
	summary.Deleted = result.Deleted
	if err != nil {
		if len(result.FailedKeys) > 0 {
			zap.S().Errorf("表 %s 下发失败的主键: %v", l.opts.Table, result.FailedKeys)
		}
		return fail(err)
	}

	// Committing：整体替换状态，持久化失败只降级告警，不影响本周期结果
	l.mu.Lock()
	l.state = &TableSyncState{
		Schema:        schema,
		SchemaVersion: schema.Version(),
		Fingerprints:  NextFingerprints(current),
		LastSyncedAt:  time.Now(),
	}
	state := l.state
	l.mu.Unlock()
	if l.store != nil {
		if err := l.store.SaveState(l.opts.Table, state); err != nil {
			zap.S().Warnf("表 %s 同步状态持久化失败: %v", l.opts.Table, err)
		}
	}

	summary.Outcome = OutcomeSuccess
	summary.Duration = time.Since(start)
	summary.FinishedAt = time.Now()
	zap.S().Infof("表 %s 同步完成 - 新增: %d, 更新: %d, 删除: %d, 耗时: %v",
		l.opts.Table, summary.Created, summary.Updated, summary.Deleted, summary.Duration)
	return summary
}

// fingerprintRows 逐行归一化主键并计算指纹。主键值为空的行跳过（告警），
// 主键声明类型不支持则整个周期按永久错误失败。
func (l *TableLoop) fingerprintRows(rows []Row, pk string) ([]DocumentRow, int, error) {
	current := make([]DocumentRow, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		value, ok := row[pk]
		if !ok || value == nil {
			skipped++
			continue
		}

		sub := row
		if len(l.opts.Fields) > 0 {
			sub = make(Row, len(l.opts.Fields)+1)
			sub[pk] = row[pk]
			for _, f := range l.opts.Fields {
				if v, ok := row[f]; ok {
					sub[f] = v
				}
			}
		}

		fp, err := Fingerprint(sub, pk)
		if err != nil {
			return nil, skipped, errors.Wrapf(err, "表 %s 行指纹计算失败", l.opts.Table)
		}
		doc := BuildDocument(sub, pk, fp.Key, nil)
		current = append(current, DocumentRow{Fingerprint: fp, Document: doc})
	}
	if skipped > 0 {
		zap.S().Warnf("表 %s 有 %d 行主键为空，已跳过", l.opts.Table, skipped)
	}
	return current, skipped, nil
}

// Scheduler 管理全部表的轮询循环：各表独立并发，互不影响
type Scheduler struct {
	loops []*TableLoop
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

func (s *Scheduler) Register(loop *TableLoop) {
	s.loops = append(s.loops, loop)
}

// Run 启动全部表循环并阻塞到取消信号。单表周期内的错误不会终止其他表的循环。
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.loops) == 0 {
		zap.S().Info("没有配置需要同步的表")
		<-ctx.Done()
		return nil
	}

	g, c := errgroup.WithContext(ctx)
	for _, loop := range s.loops {
		loop := loop
		g.Go(func() error {
			return loop.Run(c)
		})
	}
	return g.Wait()
}

// SyncAll 每张表执行一次同步后返回（run --once 模式）
func (s *Scheduler) SyncAll(ctx context.Context) error {
	var failed []string
	for _, loop := range s.loops {
		summary := loop.SyncOnce(ctx)
		if summary.Outcome == OutcomeFailed {
			failed = append(failed, summary.Table)
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("以下表同步失败: %s", strings.Join(failed, ", "))
	}
	return nil
}
