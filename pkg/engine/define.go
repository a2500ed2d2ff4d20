package engine

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Row 一行原始数据（列名 -> 值），由数据库适配器提供
type Row map[string]interface{}

// KeyKind 归一化主键的类型标记
type KeyKind int8

const (
	KeyInt  KeyKind = iota // 整型主键，统一为 int64
	KeyText                // 文本主键（含 UUID 的规范形式）
)

// NormalizedKey 归一化主键。不同来源列类型（整型/UUID/文本）统一为可比较、可排序的形式。
// 相同的数据库主键值一定归一化为相同的 NormalizedKey，不同主键值不会冲突。
type NormalizedKey struct {
	Kind KeyKind
	Int  int64
	Text string
}

// String 返回主键的文本形式，作为索引文档 ID 使用
func (k NormalizedKey) String() string {
	if k.Kind == KeyInt {
		return strconv.FormatInt(k.Int, 10)
	}
	return k.Text
}

// Less 提供稳定排序：整型在前按数值，文本在后按字典序
func (k NormalizedKey) Less(other NormalizedKey) bool {
	if k.Kind != other.Kind {
		return k.Kind < other.Kind
	}
	if k.Kind == KeyInt {
		return k.Int < other.Int
	}
	return k.Text < other.Text
}

// RowFingerprint 行指纹：归一化主键 + 内容哈希。
// 内容哈希只覆盖非主键列，主键列本身不参与哈希。
type RowFingerprint struct {
	Key  NormalizedKey
	Hash uint64
}

// DocumentRow 带载荷的行指纹，diff 之后直接作为索引文档下发
type DocumentRow struct {
	Fingerprint RowFingerprint
	Document    Row
}

// Column 一列的结构信息
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// SchemaSnapshot 表结构快照。每次轮询整体替换，创建后不再修改。
type SchemaSnapshot struct {
	Columns    []Column `json:"columns"`
	PrimaryKey string   `json:"primaryKey"`
}

// Version 结构快照的版本标识（对列集合与主键做稳定哈希）
func (s *SchemaSnapshot) Version() string {
	d := xxhash.New()
	cols := make([]Column, len(s.Columns))
	copy(cols, s.Columns)
	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
	for _, c := range cols {
		_, _ = d.WriteString(c.Name)
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(c.Type)
		_, _ = d.Write([]byte{0})
		if c.Nullable {
			_, _ = d.Write([]byte{1})
		} else {
			_, _ = d.Write([]byte{0})
		}
	}
	_, _ = d.WriteString(s.PrimaryKey)
	return strconv.FormatUint(d.Sum64(), 16)
}

// ColumnType 查找某列的声明类型，不存在返回空串
func (s *SchemaSnapshot) ColumnType(name string) string {
	for _, c := range s.Columns {
		if c.Name == name {
			return c.Type
		}
	}
	return ""
}

// TableSyncState 单表的同步状态：最近一次成功提交的结构快照与行指纹。
// 只由该表的轮询循环写入，不跨循环共享。
type TableSyncState struct {
	Schema        *SchemaSnapshot
	SchemaVersion string
	Fingerprints  map[NormalizedKey]RowFingerprint
	LastSyncedAt  time.Time
}

// NewTableSyncState 首次轮询时的空状态（所有当前行都视为新增）
func NewTableSyncState() *TableSyncState {
	return &TableSyncState{
		Fingerprints: make(map[NormalizedKey]RowFingerprint),
	}
}

// DiffSet 一次同步周期内的变更集合，三类主键互不相交，周期结束即丢弃
type DiffSet struct {
	Creates map[NormalizedKey]Row
	Updates map[NormalizedKey]Row
	Deletes []NormalizedKey
}

// Empty 是否没有任何变更
func (d *DiffSet) Empty() bool {
	return len(d.Creates) == 0 && len(d.Updates) == 0 && len(d.Deletes) == 0
}

// SchemaChangeKind 结构变化分类
type SchemaChangeKind int

const (
	SchemaUnchanged SchemaChangeKind = iota
	SchemaColumnsAdded
	SchemaColumnsRemoved
	SchemaTypesChanged
	SchemaPrimaryKeyChanged
)

func (k SchemaChangeKind) String() string {
	switch k {
	case SchemaColumnsAdded:
		return "columns_added"
	case SchemaColumnsRemoved:
		return "columns_removed"
	case SchemaTypesChanged:
		return "types_changed"
	case SchemaPrimaryKeyChanged:
		return "primary_key_changed"
	default:
		return "unchanged"
	}
}

// SchemaChange 结构变化分类结果，决定本周期的下发策略
type SchemaChange struct {
	Kind    SchemaChangeKind
	Added   []string
	Removed []string
}

// RequiresFullReindex 主键或列类型变化时必须全量重建索引
func (c SchemaChange) RequiresFullReindex() bool {
	return c.Kind == SchemaPrimaryKeyChanged || c.Kind == SchemaTypesChanged
}

// RequiresSettingsUpdate 列增删时需要增量调整索引字段配置
func (c SchemaChange) RequiresSettingsUpdate() bool {
	return c.Kind == SchemaColumnsAdded || c.Kind == SchemaColumnsRemoved
}

// CycleOutcome 单次同步周期的结果
type CycleOutcome string

const (
	OutcomeSuccess CycleOutcome = "success"
	OutcomeFailed  CycleOutcome = "failed"
	OutcomeSkipped CycleOutcome = "skipped"
)

// CycleSummary 单表单周期的同步摘要，上报给状态接口/事件总线
type CycleSummary struct {
	Table        string           `json:"table"`
	Index        string           `json:"index"`
	Outcome      CycleOutcome     `json:"outcome"`
	SchemaChange SchemaChangeKind `json:"schemaChange"`
	Created      int              `json:"created"`
	Updated      int              `json:"updated"`
	Deleted      int              `json:"deleted"`
	SkippedRows  int              `json:"skippedRows,omitempty"`
	Duration     time.Duration    `json:"duration"`
	Error        string           `json:"error,omitempty"`
	FinishedAt   time.Time        `json:"finishedAt"`
}

// Database 数据库侧能力接口，由 pkg/db 的适配器实现
type Database interface {
	// GetSchema 读取当前表结构快照
	GetSchema(ctx context.Context, table string) (*SchemaSnapshot, error)
	// GetRows 读取当前全部行
	GetRows(ctx context.Context, table string) ([]Row, error)
}

// Index 索引服务侧能力接口，由 pkg/meili 的客户端实现
type Index interface {
	// ConfigureIndex 增量调整索引字段配置，在行批次之前调用
	ConfigureIndex(ctx context.Context, index string, fieldsAdd, fieldsRemove []string, primaryKey string) error
	// RecreateIndex 删除并按新主键重建索引（全量重建路径）
	RecreateIndex(ctx context.Context, index string, primaryKey string) error
	// UpsertBatch 批量写入/更新文档
	UpsertBatch(ctx context.Context, index string, docs []Row) error
	// DeleteBatch 按文档 ID 批量删除
	DeleteBatch(ctx context.Context, index string, keys []string) error
}

// StateStore 可选的同步状态持久化（重启后增量续传，而不是全量重发）
type StateStore interface {
	SaveState(table string, state *TableSyncState) error
	// LoadState 不存在时返回 (nil, nil)
	LoadState(table string) (*TableSyncState, error)
}

// TableOptions 单表的同步参数，由配置层注册
type TableOptions struct {
	Table           string
	Index           string
	PrimaryKey      string
	Fields          []string // 参与索引的列，空表示全部列
	PollInterval    time.Duration
	Cron            string // 非空时用 cron 表达式替代固定间隔
	RunOnStart      bool
	BatchSize       int
	MaxConcurrency  int
	MaxRetries      int
	InterBatchDelay time.Duration
}
