package meili

import (
	"context"
	"time"

	"github.com/meilisearch/meilisearch-go"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"meilibridge/pkg/engine"
)

// IndexSettings 索引的初始检索配置（按表配置，可选）
type IndexSettings struct {
	Searchable   []string `json:"searchable,omitempty" yaml:"searchable,omitempty" mapstructure:"searchable"`
	Filterable   []string `json:"filterable,omitempty" yaml:"filterable,omitempty" mapstructure:"filterable"`
	Sortable     []string `json:"sortable,omitempty" yaml:"sortable,omitempty" mapstructure:"sortable"`
	Displayed    []string `json:"displayed,omitempty" yaml:"displayed,omitempty" mapstructure:"displayed"`
	RankingRules []string `json:"rankingRules,omitempty" yaml:"rankingRules,omitempty" mapstructure:"rankingRules"`
}

// Client Meilisearch 写入端封装：所有写操作等待异步任务落定后才返回，
// 保证调用方看到的成败与索引的真实状态一致。
type Client struct {
	client *meilisearch.Client
}

func NewClient(cfg *Config) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		client: meilisearch.NewClient(meilisearch.ClientConfig{
			Host:    cfg.Host,
			APIKey:  cfg.APIKey,
			Timeout: timeout,
		}),
	}
}

// Health 探活（启动时校验服务可达）
func (c *Client) Health() error {
	if _, err := c.client.Health(); err != nil {
		return engine.Transient(errors.Wrap(err, "Meilisearch 服务不可达"))
	}
	return nil
}

// EnsureIndex 索引不存在则创建，存在则复用；settings 仅在首次创建时应用
func (c *Client) EnsureIndex(ctx context.Context, index, primaryKey string, settings *IndexSettings) error {
	_, err := c.client.GetIndex(index)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return classify(err, "查询索引 %s 失败", index)
	}

	zap.S().Infof("索引 %s 不存在，自动创建（主键 %s）", index, primaryKey)
	task, err := c.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        index,
		PrimaryKey: primaryKey,
	})
	if err != nil {
		return classify(err, "创建索引 %s 失败", index)
	}
	if err := c.waitForTask(ctx, task.TaskUID); err != nil {
		return errors.Wrapf(err, "创建索引 %s 任务失败", index)
	}

	if settings != nil {
		s := &meilisearch.Settings{
			SearchableAttributes: settings.Searchable,
			FilterableAttributes: settings.Filterable,
			SortableAttributes:   settings.Sortable,
			DisplayedAttributes:  settings.Displayed,
			RankingRules:         settings.RankingRules,
		}
		task, err := c.client.Index(index).UpdateSettings(s)
		if err != nil {
			return classify(err, "应用索引 %s 初始配置失败", index)
		}
		if err := c.waitForTask(ctx, task.TaskUID); err != nil {
			return errors.Wrapf(err, "应用索引 %s 初始配置任务失败", index)
		}
	}
	return nil
}

// ConfigureIndex 列增删后的增量配置调整：把新增列加入可检索/可展示集合，
// 把删除列从全部属性集合中剔除。通配符配置（"*"）保持原样不动。
func (c *Client) ConfigureIndex(ctx context.Context, index string, fieldsAdd, fieldsRemove []string, primaryKey string) error {
	idx := c.client.Index(index)
	settings, err := idx.GetSettings()
	if err != nil {
		return classify(err, "读取索引 %s 配置失败", index)
	}

	next := &meilisearch.Settings{
		SearchableAttributes: adjustAttributes(settings.SearchableAttributes, fieldsAdd, fieldsRemove),
		DisplayedAttributes:  adjustAttributes(settings.DisplayedAttributes, fieldsAdd, fieldsRemove),
		FilterableAttributes: adjustAttributes(settings.FilterableAttributes, nil, fieldsRemove),
		SortableAttributes:   adjustAttributes(settings.SortableAttributes, nil, fieldsRemove),
	}

	task, err := idx.UpdateSettings(next)
	if err != nil {
		return classify(err, "更新索引 %s 配置失败", index)
	}
	if err := c.waitForTask(ctx, task.TaskUID); err != nil {
		return errors.Wrapf(err, "更新索引 %s 配置任务失败", index)
	}
	zap.S().Infof("索引 %s 字段配置已调整（新增 %v，移除 %v）", index, fieldsAdd, fieldsRemove)
	return nil
}

// adjustAttributes 通配符或空集合表示"全部字段"，无需调整
func adjustAttributes(current, add, remove []string) []string {
	if len(current) == 0 || (len(current) == 1 && current[0] == "*") {
		return current
	}
	next, _ := lo.Difference(current, remove)
	for _, f := range add {
		if !lo.Contains(next, f) {
			next = append(next, f)
		}
	}
	return next
}

// RecreateIndex 删除重建索引（主键或列类型变化时的全量重建入口）
func (c *Client) RecreateIndex(ctx context.Context, index, primaryKey string) error {
	zap.S().Warnf("索引 %s 即将删除重建（主键 %s）", index, primaryKey)

	task, err := c.client.DeleteIndex(index)
	if err != nil {
		if !isNotFound(err) {
			return classify(err, "删除索引 %s 失败", index)
		}
	} else {
		if err := c.waitForTask(ctx, task.TaskUID); err != nil {
			return errors.Wrapf(err, "删除索引 %s 任务失败", index)
		}
	}

	create, err := c.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        index,
		PrimaryKey: primaryKey,
	})
	if err != nil {
		return classify(err, "重建索引 %s 失败", index)
	}
	if err := c.waitForTask(ctx, create.TaskUID); err != nil {
		return errors.Wrapf(err, "重建索引 %s 任务失败", index)
	}
	return nil
}

// UpsertBatch 批量写入文档（创建与更新同一入口，天然幂等）
func (c *Client) UpsertBatch(ctx context.Context, index string, docs []engine.Row) error {
	task, err := c.client.Index(index).AddDocuments(docs)
	if err != nil {
		return classify(err, "索引 %s 写入 %d 条文档失败", index, len(docs))
	}
	if err := c.waitForTask(ctx, task.TaskUID); err != nil {
		return errors.Wrapf(err, "索引 %s 写入任务失败", index)
	}
	return nil
}

// DeleteBatch 批量删除文档（按归一化后的主键）
func (c *Client) DeleteBatch(ctx context.Context, index string, keys []string) error {
	task, err := c.client.Index(index).DeleteDocuments(keys)
	if err != nil {
		return classify(err, "索引 %s 删除 %d 条文档失败", index, len(keys))
	}
	if err := c.waitForTask(ctx, task.TaskUID); err != nil {
		return errors.Wrapf(err, "索引 %s 删除任务失败", index)
	}
	return nil
}

// waitForTask 等待异步任务落定，任务失败按失败码归类
func (c *Client) waitForTask(ctx context.Context, taskUID int64) error {
	task, err := c.client.WaitForTask(taskUID, meilisearch.WaitParams{Context: ctx})
	if err != nil {
		return engine.Transient(errors.Wrapf(err, "等待任务 %d 失败", taskUID))
	}
	if task.Status == meilisearch.TaskStatusFailed {
		err := errors.Errorf("任务 %d 执行失败: %s (%s)", taskUID, task.Error.Message, task.Error.Code)
		if task.Error.Type == "internal" {
			return engine.Transient(err)
		}
		return engine.Permanent(err)
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr *meilisearch.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 404
	}
	return false
}

// classify 按 HTTP 状态码归类：服务端错误、超时、限流可重试，
// 其余 4xx 属于请求本身的问题，重试无意义。
func classify(err error, format string, args ...interface{}) error {
	wrapped := errors.Wrapf(err, format, args...)
	var apiErr *meilisearch.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 0,
			apiErr.StatusCode == 408,
			apiErr.StatusCode == 429,
			apiErr.StatusCode >= 500:
			return engine.Transient(wrapped)
		default:
			return engine.Permanent(wrapped)
		}
	}
	// 非 API 错误按网络问题处理
	return engine.Transient(wrapped)
}
