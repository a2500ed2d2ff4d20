package engine

import (
	"sort"

	"github.com/samber/lo"
)

// Classify 比较相邻两次结构快照，产出分类结果。
// 优先级从高到低：主键变化 > 列删除 > 类型变化 > 列新增 > 无变化。
// previous 为 nil（首次轮询）按无变化处理，首次全量由变更检测的空状态规则负责。
func Classify(previous, current *SchemaSnapshot) SchemaChange {
	if previous == nil {
		return SchemaChange{Kind: SchemaUnchanged}
	}

	// 主键列名或其声明类型变化 ⇒ 全量重建
	if previous.PrimaryKey != current.PrimaryKey ||
		previous.ColumnType(previous.PrimaryKey) != current.ColumnType(current.PrimaryKey) {
		return SchemaChange{Kind: SchemaPrimaryKeyChanged}
	}

	prevNames := lo.Map(previous.Columns, func(c Column, _ int) string { return c.Name })
	curNames := lo.Map(current.Columns, func(c Column, _ int) string { return c.Name })

	added, removed := lo.Difference(curNames, prevNames)
	sort.Strings(added)
	sort.Strings(removed)

	// 列删除优先于列新增：新增可以增量合并，删除必须先收缩索引字段
	if len(removed) > 0 {
		return SchemaChange{Kind: SchemaColumnsRemoved, Added: added, Removed: removed}
	}

	// 保留列的声明类型变化 ⇒ 全量重建
	for _, c := range current.Columns {
		prevType := previous.ColumnType(c.Name)
		if prevType != "" && prevType != c.Type {
			return SchemaChange{Kind: SchemaTypesChanged}
		}
	}

	if len(added) > 0 {
		return SchemaChange{Kind: SchemaColumnsAdded, Added: added}
	}

	return SchemaChange{Kind: SchemaUnchanged}
}
