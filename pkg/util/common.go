package util

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

func IsValidPort[T int | int32 | uint | uint32 | uint64 | int64 | string](port T) error {
	p, err := cast.ToIntE(port)
	if err != nil {
		return errors.Wrap(err, "端口转换错误")
	}

	if p >= 0 && p < 65535 {
		return nil
	}
	return errors.Errorf("%d不是一个合格的[0-65535]端口", p)
}

func StringToBytes(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// IsValidIdentifier 校验表名/列名是否为合法标识符，防止拼接 SQL 注入
func IsValidIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
