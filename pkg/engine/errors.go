package engine

import (
	"github.com/pkg/errors"
)

// ErrorClass 错误分类：瞬时错误在批次内重试，永久错误立即上浮
type ErrorClass int

const (
	ClassTransient ErrorClass = iota // 网络超时、5xx、连接拒绝
	ClassPermanent                   // 认证失败、请求/配置非法、不支持的结构
)

// ClassifiedError 带分类标记的错误
type ClassifiedError struct {
	Class ErrorClass
	Err   error
}

func (e *ClassifiedError) Error() string {
	if e.Class == ClassTransient {
		return "瞬时错误: " + e.Err.Error()
	}
	return "永久错误: " + e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Transient 标记为瞬时（可重试）错误
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: ClassTransient, Err: err}
}

// Permanent 标记为永久（不可重试）错误
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: ClassPermanent, Err: err}
}

// IsTransient 未分类的错误按瞬时处理（下个周期自动重算重试）
func IsTransient(err error) bool {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ClassTransient
	}
	return true
}

// IsPermanent 只有显式标记为永久的错误才不重试
func IsPermanent(err error) bool {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ClassPermanent
	}
	return false
}

// ErrUnsupportedKeyType 主键列的声明类型无法归一化（如复合主键、浮点主键）
var ErrUnsupportedKeyType = errors.New("不支持的主键类型")
