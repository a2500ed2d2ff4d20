package engine

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// 规范化字节序列的类型标记，保证跨进程、跨平台的哈希稳定性
const (
	tagNull  byte = 0x00
	tagInt   byte = 0x01
	tagFloat byte = 0x02
	tagBool  byte = 0x03
	tagText  byte = 0x04
	tagBytes byte = 0x05
	tagTime  byte = 0x06
	tagOther byte = 0x07
)

// NormalizeKey 把主键值归一化为统一形式：
// 整型统一为 int64；UUID 统一为小写带连字符的规范文本；其他文本原样保留。
// 无法归一化的类型返回 ErrUnsupportedKeyType。
func NormalizeKey(value interface{}) (NormalizedKey, error) {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n, err := cast.ToInt64E(v)
		if err != nil {
			return NormalizedKey{}, errors.Wrapf(ErrUnsupportedKeyType, "整型主键转换失败: %v", err)
		}
		return NormalizedKey{Kind: KeyInt, Int: n}, nil
	case string:
		return normalizeTextKey(v), nil
	case []byte:
		return normalizeTextKey(string(v)), nil
	default:
		return NormalizedKey{}, errors.Wrapf(ErrUnsupportedKeyType, "主键类型 %T 无法归一化", value)
	}
}

// normalizeTextKey UUID 统一为 uuid 包的规范形式（小写、带连字符），其余文本原样
func normalizeTextKey(s string) NormalizedKey {
	if u, err := uuid.Parse(s); err == nil {
		return NormalizedKey{Kind: KeyText, Text: u.String()}
	}
	return NormalizedKey{Kind: KeyText, Text: s}
}

// Fingerprint 对一行计算指纹。主键列参与 key、不参与内容哈希；
// 内容哈希按列名排序后逐列写入规范化字节序列，保证确定性。
func Fingerprint(row Row, primaryKey string) (RowFingerprint, error) {
	value, ok := row[primaryKey]
	if !ok {
		return RowFingerprint{}, Permanent(errors.Errorf("行缺少主键列 %s", primaryKey))
	}
	key, err := NormalizeKey(value)
	if err != nil {
		return RowFingerprint{}, Permanent(err)
	}
	return RowFingerprint{Key: key, Hash: hashFields(row, primaryKey)}, nil
}

func hashFields(row Row, primaryKey string) uint64 {
	names := make([]string, 0, len(row))
	for name := range row {
		if name == primaryKey {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	d := xxhash.New()
	for _, name := range names {
		_, _ = d.WriteString(name)
		_, _ = d.Write([]byte{0xFE}) // 列名与值之间的分隔符
		writeCanonical(d, row[name])
	}
	return d.Sum64()
}

// writeCanonical 每种类型一个标记字节 + 固定编码：
// 整型 8 字节大端，浮点 IEEE-754 位模式，文本 UTF-8 带长度前缀，null 用独立标记。
func writeCanonical(d *xxhash.Digest, value interface{}) {
	var buf [8]byte
	switch v := value.(type) {
	case nil:
		_, _ = d.Write([]byte{tagNull})
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		_, _ = d.Write([]byte{tagInt})
		binary.BigEndian.PutUint64(buf[:], uint64(cast.ToInt64(v)))
		_, _ = d.Write(buf[:])
	case float32:
		_, _ = d.Write([]byte{tagFloat})
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(float64(v)))
		_, _ = d.Write(buf[:])
	case float64:
		_, _ = d.Write([]byte{tagFloat})
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = d.Write(buf[:])
	case bool:
		if v {
			_, _ = d.Write([]byte{tagBool, 1})
		} else {
			_, _ = d.Write([]byte{tagBool, 0})
		}
	case string:
		_, _ = d.Write([]byte{tagText})
		binary.BigEndian.PutUint64(buf[:], uint64(len(v)))
		_, _ = d.Write(buf[:])
		_, _ = d.WriteString(v)
	case []byte:
		_, _ = d.Write([]byte{tagBytes})
		binary.BigEndian.PutUint64(buf[:], uint64(len(v)))
		_, _ = d.Write(buf[:])
		_, _ = d.Write(v)
	case time.Time:
		_, _ = d.Write([]byte{tagTime})
		s := v.UTC().Format(time.RFC3339Nano)
		binary.BigEndian.PutUint64(buf[:], uint64(len(s)))
		_, _ = d.Write(buf[:])
		_, _ = d.WriteString(s)
	default:
		// 其他驱动特有类型退化为文本表示，仍然是确定性的
		s := fmt.Sprintf("%v", v)
		_, _ = d.Write([]byte{tagOther})
		binary.BigEndian.PutUint64(buf[:], uint64(len(s)))
		_, _ = d.Write(buf[:])
		_, _ = d.WriteString(s)
	}
}

// BuildDocument 把原始行转成索引文档：
// 只保留 fields 指定的列（空表示全部），主键列替换为归一化后的值，
// []byte 转成字符串、time 转成 RFC3339，保证 JSON 序列化友好。
func BuildDocument(row Row, primaryKey string, key NormalizedKey, fields []string) Row {
	doc := make(Row, len(row))
	include := func(name string) bool {
		if len(fields) == 0 {
			return true
		}
		for _, f := range fields {
			if f == name {
				return true
			}
		}
		return false
	}
	for name, value := range row {
		if name == primaryKey {
			continue
		}
		if !include(name) {
			continue
		}
		doc[name] = jsonValue(value)
	}
	if key.Kind == KeyInt {
		doc[primaryKey] = key.Int
	} else {
		doc[primaryKey] = key.Text
	}
	return doc
}

func jsonValue(value interface{}) interface{} {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return value
	}
}
