// Package model はドメインモデルを定義する。
package model

import "time"

// TrackedListing はワークスペースが監視対象として登録した出品を表す。
// listings_currentテーブルの1行に対応する。
type TrackedListing struct {
	ID          string // 内部UUID
	WorkspaceID string
	Marketplace Marketplace
	ExternalID  string // マーケットプレイス側の出品ID
	Title       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Snapshot は出品のある時点の状態をコンテンツハッシュ付きで保存したもの。
// 直近スナップショットとコンテンツが異なる場合のみ挿入される
// （{raw, normalized, derived}全体のハッシュによるコンテンツアドレス重複排除）。
type Snapshot struct {
	ID             string
	WorkspaceID    string
	ListingUUID    string
	RawData        map[string]any
	NormalizedData map[string]any
	DerivedData    map[string]any
	ContentHash    string
	CapturedAt     time.Time
}

// AlertOperator はアラート条件の演算子を表す。
type AlertOperator string

const (
	// OperatorChanged はフィールド値の任意の変化で発火する。
	OperatorChanged AlertOperator = "changed"
	// OperatorDecreasedByPct は指定率以上の下落で発火する。
	OperatorDecreasedByPct AlertOperator = "decreased_by_pct"
	// OperatorIncreasedByPct は指定率以上の上昇で発火する。
	OperatorIncreasedByPct AlertOperator = "increased_by_pct"
)

// AlertCondition はアラートルールの発火条件を表す。
// Fieldはベースラインのフィールドパス（例: "price", "badges.free_shipping"）。
type AlertCondition struct {
	Field     string
	Operator  AlertOperator
	Threshold float64
}

// AlertRule はワークスペース所属のアラートルールを表す。
// ListingIDが空の場合、ワークスペースの全監視対象出品に適用される。
type AlertRule struct {
	ID          string
	WorkspaceID string
	ListingID   string // 空=ワークスペース全体
	Condition   AlertCondition
	IsActive    bool
	CreatedAt   time.Time
}

// AlertEvent はルール条件の成立によって生成されたアラートイベントを表す。
// EventDataには差分とdedupe signature（{rule_id, listing_id, changes}のハッシュ）を含む。
type AlertEvent struct {
	ID          string
	WorkspaceID string
	RuleID      string
	ListingID   string
	EventData   map[string]any
	TriggeredAt time.Time
}

// DedupeSignature はEventDataからdedupe signatureを取り出す。
// 設定されていない場合は空文字列を返す。
func (e *AlertEvent) DedupeSignature() string {
	if e.EventData == nil {
		return ""
	}
	if sig, ok := e.EventData["dedupe_signature"].(string); ok {
		return sig
	}
	return ""
}
