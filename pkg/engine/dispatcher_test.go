package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDispatcher(index Index, batchSize, concurrency, retries int) *Dispatcher {
	d := NewDispatcher(index, TableOptions{
		BatchSize:      batchSize,
		MaxConcurrency: concurrency,
		MaxRetries:     retries,
	})
	// 测试不等真实的节流与退避
	d.interBatchDelay = time.Millisecond
	d.initialBackoff = time.Millisecond
	return d
}

func buildCreates(n int) *DiffSet {
	ds := &DiffSet{Creates: make(map[NormalizedKey]Row), Updates: make(map[NormalizedKey]Row)}
	for i := 0; i < n; i++ {
		ds.Creates[intKey(int64(i))] = Row{"id": int64(i), "v": fmt.Sprintf("row-%d", i)}
	}
	return ds
}

func TestDispatchEmptyDiff(t *testing.T) {
	index := &fakeIndex{}
	d := testDispatcher(index, 100, 5, 3)

	result, err := d.Dispatch(context.Background(), "idx", &DiffSet{})
	require.NoError(t, err)
	assert.Zero(t, result.Created)
	assert.Empty(t, index.callLog())
}

func TestDispatchBatching(t *testing.T) {
	index := &fakeIndex{}
	d := testDispatcher(index, 100, 5, 3)

	result, err := d.Dispatch(context.Background(), "idx", buildCreates(250))
	require.NoError(t, err)
	assert.Equal(t, 250, result.Created)
	assert.Equal(t, 250, index.upsertedDocs())
	require.Len(t, index.upsertBatches, 3)
	for _, b := range index.upsertBatches {
		assert.LessOrEqual(t, len(b), 100)
	}
}

func TestDispatchKindsNotMixed(t *testing.T) {
	index := &fakeIndex{}
	d := testDispatcher(index, 100, 2, 3)

	ds := buildCreates(3)
	ds.Updates[intKey(100)] = Row{"id": int64(100), "v": "u"}
	ds.Deletes = []NormalizedKey{intKey(200), intKey(201)}

	result, err := d.Dispatch(context.Background(), "idx", ds)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 2, result.Deleted)
	require.Len(t, index.deleteBatches, 1)
	assert.ElementsMatch(t, []string{"200", "201"}, index.deleteBatches[0])
}

func TestDispatchRetryTransientThenSucceed(t *testing.T) {
	index := &fakeIndex{upsertFails: 2}
	d := testDispatcher(index, 100, 1, 3)

	result, err := d.Dispatch(context.Background(), "idx", buildCreates(5))
	require.NoError(t, err)
	assert.Equal(t, 5, result.Created)
	// 2 次失败 + 1 次成功
	assert.Equal(t, 3, index.calls("upsert"))
}

func TestDispatchTransientExhausted(t *testing.T) {
	index := &fakeIndex{upsertFails: 10}
	d := testDispatcher(index, 100, 1, 3)

	result, err := d.Dispatch(context.Background(), "idx", buildCreates(5))
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 1, result.FailedBatches)
	assert.Len(t, result.FailedKeys, 5)
	// 重试次数封顶
	assert.Equal(t, 3, index.calls("upsert"))
}

func TestDispatchPermanentNoRetry(t *testing.T) {
	index := &fakeIndex{
		upsertFails: 10,
		failWith:    Permanent(errors.New("invalid document")),
	}
	d := testDispatcher(index, 100, 1, 3)

	_, err := d.Dispatch(context.Background(), "idx", buildCreates(5))
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	// 永久错误不重试
	assert.Equal(t, 1, index.calls("upsert"))
}

func TestDispatchPermanentCancelsRemaining(t *testing.T) {
	// 第一个批次永久失败后立即取消，排队中的批次不再发送
	index := &fakeIndex{
		upsertFails: 1,
		failWith:    Permanent(errors.New("auth rejected")),
	}
	d := testDispatcher(index, 1, 1, 3)

	_, err := d.Dispatch(context.Background(), "idx", buildCreates(10))
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Less(t, index.calls("upsert"), 10)
}

func TestDispatchPartialFailureIsolated(t *testing.T) {
	// 第一个批次耗尽重试，后续批次不受影响
	index := &fakeIndex{upsertFails: 3}
	d := testDispatcher(index, 100, 1, 3)

	result, err := d.Dispatch(context.Background(), "idx", buildCreates(250))
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 1, result.FailedBatches)
	assert.Equal(t, 200, result.Created)
}

func TestDispatchConcurrencyBound(t *testing.T) {
	index := &fakeIndex{}
	d := testDispatcher(index, 10, 4, 3)

	result, err := d.Dispatch(context.Background(), "idx", buildCreates(100))
	require.NoError(t, err)
	assert.Equal(t, 100, result.Created)
	assert.Len(t, index.upsertBatches, 10)
}
