// Package cache は市場調査結果向けのTTL付きキャッシュを提供する。
//
// インメモリ実装(LRU+TTL)は単一プロセス所有を前提としており、
// 複数インスタンス構成では正確性に依存してはならない（レイテンシ最適化のみ）。
// 共有が必要な構成ではRedis実装を使用する。
package cache

import "context"

// Cache はキー・バイト列のTTL付きキャッシュのインターフェース。
// キャッシュキーは呼び出し側が明示的に構築する
// （リクエストIDなどの揮発フィールドをキーに含めないこと）。
type Cache interface {
	// Get はキーに対応する値を返す。未登録または期限切れの場合はfalse。
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set は値をTTL付きで登録する。
	Set(ctx context.Context, key string, value []byte) error

	// Delete は指定キーのエントリを削除する。
	Delete(ctx context.Context, key string) error

	// Clear は全エントリを削除する。
	Clear(ctx context.Context) error

	// Close はキャッシュが保持するリソースを解放する。
	Close() error
}
