package store

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/timshannon/badgerhold/v4"
	"go.uber.org/zap"

	"meilibridge/pkg/engine"
)

var instance *BadgerStore
var once sync.Once

type BadgerStore struct {
	store *badgerhold.Store
}

func (b *BadgerStore) Upsert(key string, value interface{}) error {
	return b.store.Upsert(key, value)
}

func (b *BadgerStore) Get(key string, value interface{}) error {
	return b.store.Get(key, value)
}

func (b *BadgerStore) Delete(key string, value interface{}) error {
	return b.store.Delete(key, value)
}

func (b *BadgerStore) Exists(key string) bool {
	var result interface{}
	err := b.store.Get(key, &result)
	return err == nil
}

// GetBadgerStore 打开本地状态库（单例）。dir 为空时默认使用 etc/data
func GetBadgerStore(dir string) *BadgerStore {
	once.Do(func() {
		if dir == "" {
			p, err := os.Getwd()
			if err != nil {
				panic(err)
			}
			dir = filepath.Join(p, "etc", "data")
		}
		options := badgerhold.DefaultOptions
		options.Dir = dir
		options.ValueDir = dir
		options.Logger = nil
		store, err := badgerhold.Open(options)
		if err != nil {
			panic(err)
		}
		instance = &BadgerStore{store: store}
	})
	return instance
}

func CloseBadgerStore() {
	if instance != nil {
		zap.S().Info("正在关闭 Badger 存储...")
		err := instance.store.Close()
		if err != nil {
			zap.S().Errorf("关闭 Badger 存储时发生错误: %v", err)
		} else {
			zap.S().Info("Badger 存储已成功关闭")
		}
		// 重置实例，避免重复关闭
		instance = nil
	}
}

// SyncStateStore 同步状态的持久化适配器：进程重启后恢复各表的
// 指纹快照，避免把存量数据当作新增重新写一遍索引。
type SyncStateStore struct {
	store *BadgerStore
}

func NewSyncStateStore(store *BadgerStore) *SyncStateStore {
	return &SyncStateStore{store: store}
}

func stateKey(table string) string {
	return "syncstate/" + table
}

func (s *SyncStateStore) SaveState(table string, state *engine.TableSyncState) error {
	if err := s.store.Upsert(stateKey(table), state); err != nil {
		return errors.Wrapf(err, "保存表 %s 同步状态失败", table)
	}
	return nil
}

// LoadState 没有历史状态时返回 (nil, nil)
func (s *SyncStateStore) LoadState(table string) (*engine.TableSyncState, error) {
	var state engine.TableSyncState
	err := s.store.Get(stateKey(table), &state)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "读取表 %s 同步状态失败", table)
	}
	return &state, nil
}
