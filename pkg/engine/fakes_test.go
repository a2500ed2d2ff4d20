package engine

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// fakeIndex 记录所有调用顺序与载荷，可注入失败
type fakeIndex struct {
	mu  sync.Mutex
	log []string

	upsertBatches [][]Row
	deleteBatches [][]string
	configures    int
	recreates     int

	// upsertFails 前 N 次 Upsert 调用返回错误
	upsertFails int
	failWith    error
}

func (f *fakeIndex) calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, entry := range f.log {
		if entry == name {
			n++
		}
	}
	return n
}

func (f *fakeIndex) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.log))
	copy(out, f.log)
	return out
}

func (f *fakeIndex) upsertedDocs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.upsertBatches {
		n += len(b)
	}
	return n
}

func (f *fakeIndex) ConfigureIndex(_ context.Context, _ string, _, _ []string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, "configure")
	f.configures++
	return nil
}

func (f *fakeIndex) RecreateIndex(_ context.Context, _ string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, "recreate")
	f.recreates++
	return nil
}

func (f *fakeIndex) UpsertBatch(_ context.Context, _ string, docs []Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, "upsert")
	if f.upsertFails > 0 {
		f.upsertFails--
		if f.failWith != nil {
			return f.failWith
		}
		return Transient(errors.New("index unavailable"))
	}
	f.upsertBatches = append(f.upsertBatches, docs)
	return nil
}

func (f *fakeIndex) DeleteBatch(_ context.Context, _ string, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, "delete")
	f.deleteBatches = append(f.deleteBatches, keys)
	return nil
}

// fakeDatabase 返回固定的结构与行，可注入错误
type fakeDatabase struct {
	mu        sync.Mutex
	schema    *SchemaSnapshot
	rows      []Row
	schemaErr error
	rowsErr   error
}

func (f *fakeDatabase) set(schema *SchemaSnapshot, rows []Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schema = schema
	f.rows = rows
}

func (f *fakeDatabase) GetSchema(_ context.Context, _ string) (*SchemaSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.schemaErr != nil {
		return nil, f.schemaErr
	}
	return f.schema, nil
}

func (f *fakeDatabase) GetRows(_ context.Context, _ string) ([]Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rowsErr != nil {
		return nil, f.rowsErr
	}
	return f.rows, nil
}
