package engine

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	base := errors.New("boom")

	assert.True(t, IsTransient(Transient(base)))
	assert.False(t, IsPermanent(Transient(base)))

	assert.True(t, IsPermanent(Permanent(base)))
	assert.False(t, IsTransient(Permanent(base)))

	// 未分类的错误按瞬时处理（宁可多试一次）
	assert.True(t, IsTransient(base))
	assert.False(t, IsPermanent(base))
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	err := errors.Wrap(Permanent(errors.New("bad document")), "下发失败")
	assert.True(t, IsPermanent(err))

	err = errors.Wrap(Transient(errors.New("timeout")), "下发失败")
	assert.True(t, IsTransient(err))
}
