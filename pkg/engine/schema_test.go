package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func snapshot(pk string, cols ...Column) *SchemaSnapshot {
	return &SchemaSnapshot{Columns: cols, PrimaryKey: pk}
}

func TestClassify(t *testing.T) {
	base := snapshot("id",
		Column{Name: "id", Type: "integer"},
		Column{Name: "title", Type: "text"},
		Column{Name: "price", Type: "real"},
	)

	tests := []struct {
		name     string
		previous *SchemaSnapshot
		current  *SchemaSnapshot
		kind     SchemaChangeKind
		added    []string
		removed  []string
	}{
		{
			name:     "首次轮询无历史快照",
			previous: nil,
			current:  base,
			kind:     SchemaUnchanged,
		},
		{
			name:     "完全一致",
			previous: base,
			current:  base,
			kind:     SchemaUnchanged,
		},
		{
			name:     "主键列名变化",
			previous: base,
			current: snapshot("uuid",
				Column{Name: "uuid", Type: "text"},
				Column{Name: "title", Type: "text"},
				Column{Name: "price", Type: "real"},
			),
			kind: SchemaPrimaryKeyChanged,
		},
		{
			name:     "主键类型变化",
			previous: base,
			current: snapshot("id",
				Column{Name: "id", Type: "text"},
				Column{Name: "title", Type: "text"},
				Column{Name: "price", Type: "real"},
			),
			kind: SchemaPrimaryKeyChanged,
		},
		{
			name:     "只新增列",
			previous: base,
			current: snapshot("id",
				Column{Name: "id", Type: "integer"},
				Column{Name: "title", Type: "text"},
				Column{Name: "price", Type: "real"},
				Column{Name: "stock", Type: "integer"},
			),
			kind:  SchemaColumnsAdded,
			added: []string{"stock"},
		},
		{
			name:     "只删除列",
			previous: base,
			current: snapshot("id",
				Column{Name: "id", Type: "integer"},
				Column{Name: "title", Type: "text"},
			),
			kind:    SchemaColumnsRemoved,
			removed: []string{"price"},
		},
		{
			name:     "同时增删时删除优先",
			previous: base,
			current: snapshot("id",
				Column{Name: "id", Type: "integer"},
				Column{Name: "title", Type: "text"},
				Column{Name: "stock", Type: "integer"},
			),
			kind:    SchemaColumnsRemoved,
			added:   []string{"stock"},
			removed: []string{"price"},
		},
		{
			name:     "保留列类型变化",
			previous: base,
			current: snapshot("id",
				Column{Name: "id", Type: "integer"},
				Column{Name: "title", Type: "text"},
				Column{Name: "price", Type: "integer"},
			),
			kind: SchemaTypesChanged,
		},
		{
			name:     "删除优先于类型变化",
			previous: base,
			current: snapshot("id",
				Column{Name: "id", Type: "integer"},
				Column{Name: "title", Type: "blob"},
			),
			kind:    SchemaColumnsRemoved,
			removed: []string{"price"},
		},
		{
			name: "主键变化优先于一切",
			previous: snapshot("id",
				Column{Name: "id", Type: "integer"},
				Column{Name: "title", Type: "text"},
			),
			current: snapshot("uuid",
				Column{Name: "uuid", Type: "text"},
				Column{Name: "body", Type: "text"},
			),
			kind: SchemaPrimaryKeyChanged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change := Classify(tt.previous, tt.current)
			assert.Equal(t, tt.kind, change.Kind)
			if tt.added != nil {
				assert.Equal(t, tt.added, change.Added)
			}
			if tt.removed != nil {
				assert.Equal(t, tt.removed, change.Removed)
			}
		})
	}
}

func TestSchemaChangeStrategy(t *testing.T) {
	assert.True(t, SchemaChange{Kind: SchemaPrimaryKeyChanged}.RequiresFullReindex())
	assert.True(t, SchemaChange{Kind: SchemaTypesChanged}.RequiresFullReindex())
	assert.False(t, SchemaChange{Kind: SchemaColumnsAdded}.RequiresFullReindex())

	assert.True(t, SchemaChange{Kind: SchemaColumnsAdded}.RequiresSettingsUpdate())
	assert.True(t, SchemaChange{Kind: SchemaColumnsRemoved}.RequiresSettingsUpdate())
	assert.False(t, SchemaChange{Kind: SchemaUnchanged}.RequiresSettingsUpdate())
}

func TestSchemaVersionStable(t *testing.T) {
	a := snapshot("id", Column{Name: "id", Type: "integer"}, Column{Name: "title", Type: "text"})
	b := snapshot("id", Column{Name: "title", Type: "text"}, Column{Name: "id", Type: "integer"})
	// 列顺序不影响版本号
	assert.Equal(t, a.Version(), b.Version())

	c := snapshot("id", Column{Name: "id", Type: "integer"}, Column{Name: "title", Type: "blob"})
	assert.NotEqual(t, a.Version(), c.Version())
}
