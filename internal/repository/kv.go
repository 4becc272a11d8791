// Package repository 定义了与持久化后端进行数据交换的接口和实现。
package repository

import "context"

// KVStore 是客户端本地持久化使用的键值存储。每个键保存一个完整的序列化值。
type KVStore interface {
	// Get 读取键值；键不存在时返回 ok=false 且 err 为 nil。
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	// Delete 删除键；键不存在不是错误。
	Delete(ctx context.Context, key string) error
	Close() error
}
