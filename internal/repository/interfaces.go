// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/marketscope/internal/model"
)

// ListingRepository は監視対象出品データの永続化インターフェース。
type ListingRepository interface {
	// FindByID は指定IDの監視対象出品を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.TrackedListing, error)

	// FindByIDs はワークスペース内の指定ID群の監視対象出品を取得する。
	// 存在しないIDは結果から除外される。
	FindByIDs(ctx context.Context, workspaceID string, ids []string) ([]*model.TrackedListing, error)

	// ListRecentByWorkspace はワークスペースの監視対象出品を更新日時の新しい順に
	// limit件まで取得する。
	ListRecentByWorkspace(ctx context.Context, workspaceID string, limit int) ([]*model.TrackedListing, error)

	// Upsert は出品の現在状態を冪等にUPSERTする。
	// (workspace_id, marketplace, external_id)をキーとし、既存行は上書き更新される。
	// 戻り値は行の内部UUID。
	Upsert(ctx context.Context, listing *model.TrackedListing, rawData, normalizedData, derivedData map[string]any) (string, error)
}

// SnapshotRepository は出品スナップショットの永続化インターフェース。
type SnapshotRepository interface {
	// GetLatest は指定出品の直近スナップショットを取得する。見つからない場合はnilを返す。
	GetLatest(ctx context.Context, workspaceID, listingUUID string) (*model.Snapshot, error)

	// InsertIfChanged はコンテンツハッシュが直近スナップショットと異なる場合のみ
	// スナップショットを挿入する（コンテンツアドレス方式の書き込み回避）。
	// 戻り値は挿入されたかどうか。
	InsertIfChanged(ctx context.Context, snapshot *model.Snapshot) (bool, error)
}

// AlertRuleRepository はアラートルールの永続化インターフェース。
type AlertRuleRepository interface {
	// FindByID は指定IDのルールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.AlertRule, error)

	// ListActive は全ワークスペースのアクティブなルールを取得する。
	// スケジューラのサイクル開始時に使用する。
	ListActive(ctx context.Context) ([]*model.AlertRule, error)

	// ListByWorkspace はワークスペースの全ルールを取得する。
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*model.AlertRule, error)

	// Create はルールを作成する。
	Create(ctx context.Context, rule *model.AlertRule) error

	// SetActive はルールの有効/無効を切り替える。
	SetActive(ctx context.Context, id string, active bool) error

	// Delete は指定IDのルールを削除する。
	Delete(ctx context.Context, id string) error
}

// AlertEventRepository はアラートイベントの永続化インターフェース。
type AlertEventRepository interface {
	// Create はアラートイベントを作成する。
	Create(ctx context.Context, event *model.AlertEvent) error

	// ListRecent は指定ルール・出品のsince以降のイベントを新しい順に取得する。
	// dedupe window内の再発火抑制の照合に使用する。
	ListRecent(ctx context.Context, ruleID, listingID string, since time.Time) ([]*model.AlertEvent, error)

	// ListByWorkspace はワークスペースのイベントを新しい順にlimit件まで取得する。
	ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]*model.AlertEvent, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
