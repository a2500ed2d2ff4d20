package engine

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKeyInt(t *testing.T) {
	for _, v := range []interface{}{int(42), int8(42), int32(42), int64(42), uint(42), uint16(42)} {
		key, err := NormalizeKey(v)
		require.NoError(t, err)
		assert.Equal(t, KeyInt, key.Kind)
		assert.Equal(t, int64(42), key.Int)
		assert.Equal(t, "42", key.String())
	}
}

func TestNormalizeKeyUUID(t *testing.T) {
	// 大小写不同的同一 UUID 必须归一化为同一个键
	a, err := NormalizeKey("550E8400-E29B-41D4-A716-446655440000")
	require.NoError(t, err)
	b, err := NormalizeKey("550e8400-e29b-41d4-a716-446655440000")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", a.Text)
}

func TestNormalizeKeyText(t *testing.T) {
	key, err := NormalizeKey("user-001")
	require.NoError(t, err)
	assert.Equal(t, KeyText, key.Kind)
	assert.Equal(t, "user-001", key.String())

	fromBytes, err := NormalizeKey([]byte("user-001"))
	require.NoError(t, err)
	assert.Equal(t, key, fromBytes)
}

func TestNormalizeKeyUnsupported(t *testing.T) {
	_, err := NormalizeKey(3.14)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedKeyType))

	_, err = NormalizeKey(struct{}{})
	assert.True(t, errors.Is(err, ErrUnsupportedKeyType))
}

func TestFingerprintDeterministic(t *testing.T) {
	row := Row{"id": int64(1), "title": "你好", "count": int64(7), "active": true}
	a, err := Fingerprint(row, "id")
	require.NoError(t, err)
	b, err := Fingerprint(Row{"active": true, "count": int64(7), "title": "你好", "id": int64(1)}, "id")
	require.NoError(t, err)
	assert.Equal(t, a.Hash, b.Hash)
	assert.Equal(t, a.Key, b.Key)
}

func TestFingerprintExcludesPrimaryKey(t *testing.T) {
	a, err := Fingerprint(Row{"id": int64(1), "title": "x"}, "id")
	require.NoError(t, err)
	b, err := Fingerprint(Row{"id": int64(2), "title": "x"}, "id")
	require.NoError(t, err)
	// 主键不同但内容相同：哈希一致，键不同
	assert.Equal(t, a.Hash, b.Hash)
	assert.NotEqual(t, a.Key, b.Key)
}

func TestFingerprintContentChange(t *testing.T) {
	a, err := Fingerprint(Row{"id": int64(1), "title": "旧标题"}, "id")
	require.NoError(t, err)
	b, err := Fingerprint(Row{"id": int64(1), "title": "新标题"}, "id")
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash, b.Hash)
	assert.Equal(t, a.Key, b.Key)
}

func TestFingerprintNullVsEmpty(t *testing.T) {
	a, err := Fingerprint(Row{"id": int64(1), "note": nil}, "id")
	require.NoError(t, err)
	b, err := Fingerprint(Row{"id": int64(1), "note": ""}, "id")
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash, b.Hash)
}

func TestFingerprintMissingPrimaryKey(t *testing.T) {
	_, err := Fingerprint(Row{"title": "x"}, "id")
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestFingerprintTypeTagsAvoidCollision(t *testing.T) {
	// 整数 1 与文本 "1" 必须产生不同的哈希
	a, err := Fingerprint(Row{"id": int64(1), "v": int64(1)}, "id")
	require.NoError(t, err)
	b, err := Fingerprint(Row{"id": int64(1), "v": "1"}, "id")
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash, b.Hash)
}

func TestBuildDocument(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	row := Row{"id": "550E8400-E29B-41D4-A716-446655440000", "title": []byte("标题"), "ts": now, "secret": "x"}
	key, err := NormalizeKey(row["id"])
	require.NoError(t, err)

	doc := BuildDocument(row, "id", key, []string{"title", "ts"})
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", doc["id"])
	assert.Equal(t, "标题", doc["title"])
	assert.Equal(t, "2026-03-01T08:00:00Z", doc["ts"])
	assert.NotContains(t, doc, "secret")
}

func TestBuildDocumentAllFields(t *testing.T) {
	row := Row{"id": int64(9), "a": 1, "b": 2}
	key, err := NormalizeKey(row["id"])
	require.NoError(t, err)

	doc := BuildDocument(row, "id", key, nil)
	assert.Equal(t, int64(9), doc["id"])
	assert.Len(t, doc, 3)
}
