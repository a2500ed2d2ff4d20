package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	defaultBatchSize       = 100
	defaultMaxConcurrency  = 5
	defaultMaxRetries      = 3
	defaultInterBatchDelay = 100 * time.Millisecond
	defaultInitialBackoff  = 200 * time.Millisecond
	defaultMaxBackoff      = 10 * time.Second
)

// Dispatcher 把变更集切成有界批次，按并发上限推送到索引服务。
// 瞬时失败在批次内按指数退避+抖动重试；永久失败立即终止本周期剩余批次。
type Dispatcher struct {
	index           Index
	batchSize       int
	concurrency     int
	maxRetries      int
	interBatchDelay time.Duration
	initialBackoff  time.Duration
	maxBackoff      time.Duration
}

// DispatchResult 一次下发的汇总结果
type DispatchResult struct {
	Created       int
	Updated       int
	Deleted       int
	FailedBatches int
	// FailedKeys 终失败批次涉及的主键，用于诊断输出
	FailedKeys []string
}

type batchKind int

const (
	batchCreate batchKind = iota
	batchUpdate
	batchDelete
)

// dispatchBatch 单个批次：新增/更新是 upsert 调用，删除是 delete 调用，两类不混装
type dispatchBatch struct {
	id   int
	kind batchKind
	docs []Row
	keys []NormalizedKey
}

type dispatchOutcome struct {
	batch *dispatchBatch
	err   error
}

// NewDispatcher 创建下发器，非法参数回退到默认值
func NewDispatcher(index Index, opts TableOptions) *Dispatcher {
	d := &Dispatcher{
		index:           index,
		batchSize:       opts.BatchSize,
		concurrency:     opts.MaxConcurrency,
		maxRetries:      opts.MaxRetries,
		interBatchDelay: opts.InterBatchDelay,
		initialBackoff:  defaultInitialBackoff,
		maxBackoff:      defaultMaxBackoff,
	}
	if d.batchSize <= 0 {
		d.batchSize = defaultBatchSize
	}
	if d.concurrency <= 0 {
		d.concurrency = defaultMaxConcurrency
	}
	if d.maxRetries <= 0 {
		d.maxRetries = defaultMaxRetries
	}
	if d.interBatchDelay <= 0 {
		d.interBatchDelay = defaultInterBatchDelay
	}
	return d
}

// Dispatch 下发一个变更集。所有批次全部成功才返回 nil，
// 调用方只有在返回 nil 时才能提交新的同步状态。
func (d *Dispatcher) Dispatch(ctx context.Context, indexName string, diff *DiffSet) (*DispatchResult, error) {
	result := &DispatchResult{}
	if diff.Empty() {
		return result, nil
	}

	batches := d.buildBatches(diff)
	zap.S().Debugf("索引 %s: 共 %d 个批次（新增 %d，更新 %d，删除 %d），并发数 %d",
		indexName, len(batches), len(diff.Creates), len(diff.Updates), len(diff.Deletes), d.concurrency)

	// 永久错误时取消剩余批次；瞬时失败只影响自身批次
	dispatchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	batchChan := make(chan *dispatchBatch, d.concurrency*2)
	resultChan := make(chan dispatchOutcome, len(batches))

	var wg sync.WaitGroup
	for i := 0; i < d.concurrency; i++ {
		wg.Add(1)
		go d.worker(dispatchCtx, indexName, batchChan, resultChan, &wg)
	}

	go func() {
		defer close(batchChan)
		for _, b := range batches {
			select {
			case batchChan <- b:
			case <-dispatchCtx.Done():
				return
			}
		}
	}()

	// 与工作协程并行消费结果：永久错误一出现就取消，未出队的批次不再发送
	drained := make(chan struct{})
	var outcomes []dispatchOutcome
	go func() {
		defer close(drained)
		for outcome := range resultChan {
			outcomes = append(outcomes, outcome)
			if outcome.err != nil && IsPermanent(outcome.err) {
				cancel()
			}
		}
	}()

	wg.Wait()
	close(resultChan)
	<-drained

	var permanentErr error
	attempted := 0
	for _, outcome := range outcomes {
		attempted++
		if outcome.err == nil {
			switch outcome.batch.kind {
			case batchCreate:
				result.Created += len(outcome.batch.docs)
			case batchUpdate:
				result.Updated += len(outcome.batch.docs)
			case batchDelete:
				result.Deleted += len(outcome.batch.keys)
			}
			continue
		}

		result.FailedBatches++
		for _, key := range outcome.batch.keys {
			result.FailedKeys = append(result.FailedKeys, key.String())
		}
		if IsPermanent(outcome.err) && permanentErr == nil {
			permanentErr = outcome.err
		}
		zap.S().Errorf("索引 %s: 批次 %d 下发失败: %v", indexName, outcome.batch.id, outcome.err)
	}

	if permanentErr != nil {
		return result, permanentErr
	}
	if result.FailedBatches > 0 {
		return result, Transient(errors.Errorf("索引 %s: %d/%d 个批次下发失败",
			indexName, result.FailedBatches, len(batches)))
	}
	if attempted < len(batches) {
		// 上下文取消导致部分批次未执行
		return result, Transient(errors.Errorf("索引 %s: %d 个批次未执行即被取消", indexName, len(batches)-attempted))
	}
	return result, nil
}

// buildBatches 三类变更分别按 batchSize 切块，新增/更新/删除不混装
func (d *Dispatcher) buildBatches(diff *DiffSet) []*dispatchBatch {
	var batches []*dispatchBatch
	id := 0
	next := func() int { id++; return id }

	for _, chunk := range lo.Chunk(lo.Entries(diff.Creates), d.batchSize) {
		b := &dispatchBatch{id: next(), kind: batchCreate}
		for _, e := range chunk {
			b.keys = append(b.keys, e.Key)
			b.docs = append(b.docs, e.Value)
		}
		batches = append(batches, b)
	}
	for _, chunk := range lo.Chunk(lo.Entries(diff.Updates), d.batchSize) {
		b := &dispatchBatch{id: next(), kind: batchUpdate}
		for _, e := range chunk {
			b.keys = append(b.keys, e.Key)
			b.docs = append(b.docs, e.Value)
		}
		batches = append(batches, b)
	}
	for _, chunk := range lo.Chunk(diff.Deletes, d.batchSize) {
		batches = append(batches, &dispatchBatch{id: next(), kind: batchDelete, keys: chunk})
	}
	return batches
}

// worker 从批次通道取任务，重试后回报结果；每个批次之间加固定节流延时
func (d *Dispatcher) worker(ctx context.Context, indexName string, batchChan <-chan *dispatchBatch, resultChan chan<- dispatchOutcome, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case b, ok := <-batchChan:
			if !ok {
				return
			}
			err := d.sendWithRetry(ctx, indexName, b)
			resultChan <- dispatchOutcome{batch: b, err: err}

			// 独立于并发上限的请求节流
			select {
			case <-time.After(d.interBatchDelay):
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// sendWithRetry 瞬时失败按指数退避+抖动重试到次数上限，永久失败直接返回
func (d *Dispatcher) sendWithRetry(ctx context.Context, indexName string, b *dispatchBatch) error {
	backoff := d.initialBackoff
	var lastErr error

	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		err := d.send(ctx, indexName, b)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}
		lastErr = err
		if attempt == d.maxRetries {
			break
		}

		delay := jitter(backoff)
		zap.S().Warnf("索引 %s: 批次 %d 第 %d 次尝试失败，%v 后重试: %v",
			indexName, b.id, attempt, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Transient(errors.Wrap(ctx.Err(), "重试等待被取消"))
		}
		backoff *= 2
		if backoff > d.maxBackoff {
			backoff = d.maxBackoff
		}
	}

	return Transient(errors.Wrapf(lastErr, "批次 %d 重试 %d 次后仍然失败", b.id, d.maxRetries))
}

func (d *Dispatcher) send(ctx context.Context, indexName string, b *dispatchBatch) error {
	if b.kind == batchDelete {
		keys := make([]string, len(b.keys))
		for i, k := range b.keys {
			keys[i] = k.String()
		}
		return d.index.DeleteBatch(ctx, indexName, keys)
	}
	return d.index.UpsertBatch(ctx, indexName, b.docs)
}

// jitter 0.8x ~ 1.2x 随机抖动，避免多个批次同时重试
func jitter(delay time.Duration) time.Duration {
	return time.Duration(float64(delay) * (0.8 + 0.4*rand.Float64()))
}
