package connector

import (
	"context"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"meilibridge/pkg/db"
	"meilibridge/pkg/engine"
	"meilibridge/pkg/meili"
	"meilibridge/pkg/nsc"
	"meilibridge/pkg/server"
	"meilibridge/pkg/store"
	"meilibridge/pkg/util"
)

// Connector 把所有部件装配起来：数据源、索引端、状态库、调度器、
// 状态 API 与事件发布。启动阶段对配置做一次性校验，之后交给调度器。
type Connector struct {
	cfg       *Config
	scheduler *engine.Scheduler
	registry  *Registry
	stateOn   bool
}

// New 装配连接器。任何一张表的索引或主键无法确定都直接失败，
// 宁可启动报错也不要带着一张永远同步不了的表空转。
func New(ctx context.Context, cfg *Config) (*Connector, error) {
	index := meili.NewClient(cfg.Meilisearch)
	if err := index.Health(); err != nil {
		return nil, err
	}

	if err := db.InitDB(cfg.DB); err != nil {
		return nil, errors.Wrap(err, "无法连接数据库")
	}
	adapter := db.NewGormAdapter(db.GetSourceDB(), cfg.DB.Driver)

	publish := cfg.Nats != nil && cfg.Nats.Enabled
	if publish {
		if err := nsc.InitNats(util.AppName, cfg.Nats); err != nil {
			return nil, errors.Wrap(err, "初始化 NATS 失败")
		}
	}

	var stateStore engine.StateStore
	stateOn := cfg.State != nil && cfg.State.Enabled
	if stateOn {
		stateStore = store.NewSyncStateStore(store.GetBadgerStore(cfg.State.Dir))
	}

	registry := NewRegistry(publish)
	scheduler := engine.NewScheduler()

	for _, tbl := range cfg.Tables {
		opts := tbl.Options(cfg.Sync)

		schema, err := adapter.GetSchema(ctx, tbl.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "表 %s 启动检查失败", tbl.Name)
		}
		pk := opts.PrimaryKey
		if pk == "" {
			pk = schema.PrimaryKey
		}
		if pk == "" {
			return nil, errors.Errorf("表 %s 没有主键，且配置中未指定 primaryKey", tbl.Name)
		}
		if schema.ColumnType(pk) == "" {
			return nil, errors.Errorf("表 %s 中不存在主键列 %s", tbl.Name, pk)
		}
		if missing, _ := lo.Difference(opts.Fields, lo.Map(schema.Columns, func(c engine.Column, _ int) string {
			return c.Name
		})); len(missing) > 0 {
			zap.S().Warnf("表 %s 配置的字段在表中不存在: %v", tbl.Name, missing)
		}

		if err := index.EnsureIndex(ctx, opts.Index, pk, tbl.Settings); err != nil {
			return nil, errors.Wrapf(err, "表 %s 准备索引失败", tbl.Name)
		}

		scheduler.Register(engine.NewTableLoop(opts, adapter, index, stateStore, registry.Record))
		zap.S().Infof("表 %s → 索引 %s 已就绪（主键 %s，轮询 %s）", tbl.Name, opts.Index, pk, opts.PollInterval)
	}

	return &Connector{
		cfg:       cfg,
		scheduler: scheduler,
		registry:  registry,
		stateOn:   stateOn,
	}, nil
}

// Run 常驻模式：调度器 + 可选的状态 API，收到取消信号后优雅退出
func (c *Connector) Run(ctx context.Context) error {
	g, gc := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.scheduler.Run(gc)
	})

	if c.cfg.Server != nil && c.cfg.Server.Enabled {
		webServer := server.NewServer(c.cfg.Server, c.registry)
		g.Go(func() error {
			zap.S().Infof("状态 API 已启动 [:%d]", c.cfg.Server.Port)
			return webServer.Run()
		})
		g.Go(func() error {
			<-gc.Done()
			return webServer.GracefulShutdown(context.Background())
		})
	}

	g.Go(func() error {
		<-gc.Done()
		c.shutdown()
		return nil
	})

	return g.Wait()
}

// RunOnce 单轮模式：每张表同步一次后退出（适合 cron 外部调度）
func (c *Connector) RunOnce(ctx context.Context) error {
	defer c.shutdown()
	return c.scheduler.SyncAll(ctx)
}

func (c *Connector) shutdown() {
	if c.stateOn {
		store.CloseBadgerStore()
	}
	if client := nsc.GetNatsClient(); client != nil {
		client.Close()
	}
}
