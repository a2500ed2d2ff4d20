package connector

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"meilibridge/pkg/db"
	"meilibridge/pkg/engine"
	"meilibridge/pkg/meili"
	"meilibridge/pkg/nsc"
	"meilibridge/pkg/server"
)

// TableConfig 单表同步配置。未设置的调度与批次参数继承全局 sync 配置
type TableConfig struct {
	Name              string               `json:"name" yaml:"name"`
	Index             string               `json:"index,omitempty" yaml:"index,omitempty"`
	PrimaryKey        string               `json:"primaryKey,omitempty" yaml:"primaryKey,omitempty"`
	Fields            []string             `json:"fields,omitempty" yaml:"fields,omitempty"`
	PollInterval      int                  `json:"pollInterval,omitempty" yaml:"pollInterval,omitempty"`
	Cron              string               `json:"cron,omitempty" yaml:"cron,omitempty"`
	BatchSize         int                  `json:"batchSize,omitempty" yaml:"batchSize,omitempty"`
	MaxConcurrency    int                  `json:"maxConcurrency,omitempty" yaml:"maxConcurrency,omitempty"`
	MaxRetries        int                  `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
	InterBatchDelayMs int                  `json:"interBatchDelayMs,omitempty" yaml:"interBatchDelayMs,omitempty"`
	Settings          *meili.IndexSettings `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// SyncConfig 全局同步参数（各表可覆盖）
type SyncConfig struct {
	PollInterval      int  `json:"pollInterval" yaml:"pollInterval"` // 秒
	RunOnStart        bool `json:"runOnStart" yaml:"runOnStart"`
	BatchSize         int  `json:"batchSize" yaml:"batchSize"`
	MaxConcurrency    int  `json:"maxConcurrency" yaml:"maxConcurrency"`
	MaxRetries        int  `json:"maxRetries" yaml:"maxRetries"`
	InterBatchDelayMs int  `json:"interBatchDelayMs" yaml:"interBatchDelayMs"`
}

// StateConfig 本地状态库配置（跨进程重启恢复指纹快照）
type StateConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Dir     string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

type Config struct {
	Meilisearch *meili.Config   `json:"meilisearch" yaml:"meilisearch"`
	DB          *db.Config      `json:"db" yaml:"db"`
	Sync        *SyncConfig     `json:"sync" yaml:"sync"`
	Tables      []*TableConfig  `json:"tables" yaml:"tables"`
	Server      *server.Config  `json:"server,omitempty" yaml:"server,omitempty"`
	Nats        *nsc.NatsConfig `json:"nats,omitempty" yaml:"nats,omitempty"`
	State       *StateConfig    `json:"state,omitempty" yaml:"state,omitempty"`
}

func NewDefaultConfig() *Config {
	return &Config{
		Meilisearch: meili.NewDefaultMeiliConfig(),
		DB:          db.NewDefaultDBConfig(),
		Sync: &SyncConfig{
			PollInterval:      60,
			RunOnStart:        true,
			BatchSize:         100,
			MaxConcurrency:    5,
			MaxRetries:        3,
			InterBatchDelayMs: 100,
		},
		Server: server.NewDefaultConfig(),
		Nats:   nsc.NewDefaultNatsConfig(),
		State:  &StateConfig{},
	}
}

func TryLoadFromDisk(configFilePath string) (*Config, error) {
	_, err := os.Stat(configFilePath)
	if err != nil {
		return nil, err
	}
	dir, file := filepath.Split(configFilePath)
	fileType := filepath.Ext(file)
	viper.Reset()
	viper.AddConfigPath(dir)
	viper.SetConfigName(strings.TrimSuffix(file, fileType))
	viper.SetConfigType(strings.TrimPrefix(fileType, "."))
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := viper.ReadInConfig(); err != nil {
		if errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, nil
		}
		return nil, err
	}
	cfg := NewDefaultConfig()
	if err := viper.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = strings.TrimPrefix(fileType, ".")
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 验证配置信息
func (c *Config) Validate() []error {
	var errs = make([]error, 0)
	if c.Meilisearch == nil {
		errs = append(errs, errors.New("缺少 meilisearch 配置"))
	} else if es := c.Meilisearch.Validate(); len(es) > 0 {
		errs = append(errs, es...)
	}
	if c.DB == nil {
		errs = append(errs, errors.New("缺少 db 配置"))
	} else if es := c.DB.Validate(); len(es) > 0 {
		errs = append(errs, es...)
	}
	if len(c.Tables) == 0 {
		errs = append(errs, errors.New("至少需要配置一张同步表"))
	}
	seen := make(map[string]struct{}, len(c.Tables))
	for _, t := range c.Tables {
		if t.Name == "" {
			errs = append(errs, errors.New("存在没有指定表名的同步配置"))
			continue
		}
		if _, ok := seen[t.Name]; ok {
			errs = append(errs, errors.Errorf("表 %s 配置重复", t.Name))
		}
		seen[t.Name] = struct{}{}
	}
	if c.Server != nil {
		if es := c.Server.Validate(); len(es) > 0 {
			errs = append(errs, es...)
		}
	}
	if c.Nats != nil {
		if err := c.Nats.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Options 把表配置与全局默认值合并成引擎侧的运行参数
func (t *TableConfig) Options(defaults *SyncConfig) engine.TableOptions {
	if defaults == nil {
		defaults = &SyncConfig{}
	}
	pick := func(own, global int) int {
		if own > 0 {
			return own
		}
		return global
	}

	opts := engine.TableOptions{
		Table:          t.Name,
		Index:          t.Index,
		PrimaryKey:     t.PrimaryKey,
		Fields:         t.Fields,
		Cron:           t.Cron,
		RunOnStart:     defaults.RunOnStart,
		BatchSize:      pick(t.BatchSize, defaults.BatchSize),
		MaxConcurrency: pick(t.MaxConcurrency, defaults.MaxConcurrency),
		MaxRetries:     pick(t.MaxRetries, defaults.MaxRetries),
	}
	if opts.Index == "" {
		opts.Index = t.Name
	}
	opts.PollInterval = time.Duration(pick(t.PollInterval, defaults.PollInterval)) * time.Second
	opts.InterBatchDelay = time.Duration(pick(t.InterBatchDelayMs, defaults.InterBatchDelayMs)) * time.Millisecond
	return opts
}
