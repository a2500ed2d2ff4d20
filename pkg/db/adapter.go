package db

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"meilibridge/pkg/engine"
	"meilibridge/pkg/util"
)

// GormAdapter 基于 gorm 的数据源读取实现：结构内省 + 全表拉取。
// 表名在拼入 SQL 前都经过标识符校验，防止配置注入。
type GormAdapter struct {
	db     *gorm.DB
	driver string
}

func NewGormAdapter(db *gorm.DB, driver string) *GormAdapter {
	return &GormAdapter{db: db, driver: strings.ToLower(driver)}
}

// GetSchema 读取表的列定义与主键。表不存在、复合主键属于永久错误，
// 连接类错误属于瞬时错误，交给上层按周期重试。
func (a *GormAdapter) GetSchema(ctx context.Context, table string) (*engine.SchemaSnapshot, error) {
	if !util.IsValidIdentifier(table) {
		return nil, engine.Permanent(errors.Errorf("非法的表名: %s", table))
	}

	var (
		snapshot *engine.SchemaSnapshot
		err      error
	)
	switch a.driver {
	case "sqlite":
		snapshot, err = a.sqliteSchema(ctx, table)
	case "postgres":
		snapshot, err = a.postgresSchema(ctx, table)
	default:
		snapshot, err = a.mysqlSchema(ctx, table)
	}
	if err != nil {
		return nil, err
	}

	if len(snapshot.Columns) == 0 {
		return nil, engine.Permanent(errors.Errorf("表 %s 不存在或没有任何列", table))
	}
	sort.Slice(snapshot.Columns, func(i, j int) bool {
		return snapshot.Columns[i].Name < snapshot.Columns[j].Name
	})
	return snapshot, nil
}

func (a *GormAdapter) sqliteSchema(ctx context.Context, table string) (*engine.SchemaSnapshot, error) {
	type pragmaRow struct {
		Name    string `gorm:"column:name"`
		Type    string `gorm:"column:type"`
		NotNull int    `gorm:"column:notnull"`
		PK      int    `gorm:"column:pk"`
	}
	var rows []pragmaRow
	// PRAGMA 不支持参数绑定，表名已通过标识符校验
	if err := a.db.WithContext(ctx).Raw(fmt.Sprintf("PRAGMA table_info(%q)", table)).Scan(&rows).Error; err != nil {
		return nil, engine.Transient(errors.Wrapf(err, "读取表 %s 结构失败", table))
	}

	snapshot := &engine.SchemaSnapshot{}
	pkCount := 0
	for _, r := range rows {
		snapshot.Columns = append(snapshot.Columns, engine.Column{
			Name:     r.Name,
			Type:     strings.ToLower(r.Type),
			Nullable: r.NotNull == 0,
		})
		if r.PK > 0 {
			pkCount++
			snapshot.PrimaryKey = r.Name
		}
	}
	if pkCount > 1 {
		return nil, engine.Permanent(errors.Errorf("表 %s 使用复合主键，暂不支持", table))
	}
	return snapshot, nil
}

func (a *GormAdapter) mysqlSchema(ctx context.Context, table string) (*engine.SchemaSnapshot, error) {
	type infoRow struct {
		ColumnName string `gorm:"column:column_name"`
		DataType   string `gorm:"column:data_type"`
		IsNullable string `gorm:"column:is_nullable"`
		ColumnKey  string `gorm:"column:column_key"`
	}
	var rows []infoRow
	err := a.db.WithContext(ctx).Raw(
		`SELECT column_name, data_type, is_nullable, column_key
		 FROM information_schema.columns
		 WHERE table_schema = DATABASE() AND table_name = ?
		 ORDER BY ordinal_position`, table).Scan(&rows).Error
	if err != nil {
		return nil, engine.Transient(errors.Wrapf(err, "读取表 %s 结构失败", table))
	}

	snapshot := &engine.SchemaSnapshot{}
	pkCount := 0
	for _, r := range rows {
		snapshot.Columns = append(snapshot.Columns, engine.Column{
			Name:     r.ColumnName,
			Type:     strings.ToLower(r.DataType),
			Nullable: strings.EqualFold(r.IsNullable, "YES"),
		})
		if r.ColumnKey == "PRI" {
			pkCount++
			snapshot.PrimaryKey = r.ColumnName
		}
	}
	if pkCount > 1 {
		return nil, engine.Permanent(errors.Errorf("表 %s 使用复合主键，暂不支持", table))
	}
	return snapshot, nil
}

func (a *GormAdapter) postgresSchema(ctx context.Context, table string) (*engine.SchemaSnapshot, error) {
	type infoRow struct {
		ColumnName string `gorm:"column:column_name"`
		DataType   string `gorm:"column:data_type"`
		IsNullable string `gorm:"column:is_nullable"`
	}
	var rows []infoRow
	err := a.db.WithContext(ctx).Raw(
		`SELECT column_name, data_type, is_nullable
		 FROM information_schema.columns
		 WHERE table_schema = current_schema() AND table_name = ?
		 ORDER BY ordinal_position`, table).Scan(&rows).Error
	if err != nil {
		return nil, engine.Transient(errors.Wrapf(err, "读取表 %s 结构失败", table))
	}

	var pkCols []string
	err = a.db.WithContext(ctx).Raw(
		`SELECT kcu.column_name
		 FROM information_schema.table_constraints tc
		 JOIN information_schema.key_column_usage kcu
		   ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		 WHERE tc.table_schema = current_schema()
		   AND tc.table_name = ? AND tc.constraint_type = 'PRIMARY KEY'`, table).Scan(&pkCols).Error
	if err != nil {
		return nil, engine.Transient(errors.Wrapf(err, "读取表 %s 主键失败", table))
	}
	if len(pkCols) > 1 {
		return nil, engine.Permanent(errors.Errorf("表 %s 使用复合主键，暂不支持", table))
	}

	snapshot := &engine.SchemaSnapshot{}
	for _, r := range rows {
		snapshot.Columns = append(snapshot.Columns, engine.Column{
			Name:     r.ColumnName,
			Type:     strings.ToLower(r.DataType),
			Nullable: strings.EqualFold(r.IsNullable, "YES"),
		})
	}
	if len(pkCols) == 1 {
		snapshot.PrimaryKey = pkCols[0]
	}
	return snapshot, nil
}

// GetRows 全表拉取。轮询式变更检测依赖每周期的完整快照，
// 不做增量查询也就不要求表上有更新时间列。
func (a *GormAdapter) GetRows(ctx context.Context, table string) ([]engine.Row, error) {
	if !util.IsValidIdentifier(table) {
		return nil, engine.Permanent(errors.Errorf("非法的表名: %s", table))
	}

	var raw []map[string]interface{}
	if err := a.db.WithContext(ctx).Table(table).Find(&raw).Error; err != nil {
		return nil, engine.Transient(errors.Wrapf(err, "读取表 %s 数据失败", table))
	}

	rows := make([]engine.Row, len(raw))
	for i, r := range raw {
		rows[i] = engine.Row(r)
	}
	return rows, nil
}

// ListTables 列出当前库的业务表（配置生成用）
func (a *GormAdapter) ListTables(ctx context.Context) ([]string, error) {
	var tables []string
	var err error
	switch a.driver {
	case "sqlite":
		err = a.db.WithContext(ctx).Raw(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`).
			Scan(&tables).Error
	case "postgres":
		err = a.db.WithContext(ctx).Raw(
			`SELECT table_name FROM information_schema.tables
			 WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`).
			Scan(&tables).Error
	default:
		err = a.db.WithContext(ctx).Raw(
			`SELECT table_name FROM information_schema.tables
			 WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name`).
			Scan(&tables).Error
	}
	if err != nil {
		return nil, engine.Transient(errors.Wrap(err, "列出数据库表失败"))
	}
	return tables, nil
}
