package connector

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"meilibridge/pkg/db"
	"meilibridge/pkg/engine"
	"meilibridge/pkg/meili"
)

// GenerateConfig 连接数据库扫描全部表，为每张含单列主键的表生成一段
// 同步配置。没有主键（或复合主键）的表跳过并告警。
func GenerateConfig(ctx context.Context, dbCfg *db.Config, meiliCfg *meili.Config, pollInterval int) (*Config, error) {
	if err := db.InitDB(dbCfg); err != nil {
		return nil, errors.Wrap(err, "无法连接数据库")
	}
	adapter := db.NewGormAdapter(db.GetSourceDB(), dbCfg.Driver)

	tables, err := adapter.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, errors.New("数据库中没有任何表")
	}

	cfg := NewDefaultConfig()
	cfg.DB = dbCfg
	cfg.Meilisearch = meiliCfg
	if pollInterval > 0 {
		cfg.Sync.PollInterval = pollInterval
	}

	for _, table := range tables {
		schema, err := adapter.GetSchema(ctx, table)
		if err != nil {
			if engine.IsPermanent(err) {
				zap.S().Warnf("表 %s 跳过: %v", table, err)
				continue
			}
			return nil, err
		}
		if schema.PrimaryKey == "" {
			zap.S().Warnf("表 %s 没有主键，已跳过（可在配置中手工指定 primaryKey）", table)
			continue
		}
		cfg.Tables = append(cfg.Tables, &TableConfig{
			Name:       table,
			Index:      table,
			PrimaryKey: schema.PrimaryKey,
		})
		zap.S().Infof("发现表 %s（主键 %s，%d 列）", table, schema.PrimaryKey, len(schema.Columns))
	}

	if len(cfg.Tables) == 0 {
		return nil, errors.New("没有找到任何带主键的表，无法生成配置")
	}
	return cfg, nil
}

// WriteConfig 把配置序列化为 yaml 写入磁盘
func WriteConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "序列化配置失败")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "创建目录 %s 失败", dir)
		}
	}
	header := []byte("# meilibridge 自动生成的配置，请按需调整后使用\n")
	if err := os.WriteFile(path, append(header, data...), 0o644); err != nil {
		return errors.Wrapf(err, "写入配置文件 %s 失败", path)
	}
	zap.S().Infof("配置已生成: %s（共 %d 张表）", path, len(cfg.Tables))
	return nil
}
