// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// 原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, connector, monitor, system
	Action   string // 対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidMarketplace = "INVALID_MARKETPLACE"
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
	ErrCodeConnectorFailed    = "CONNECTOR_FAILED"
	ErrCodeListingNotFound    = "LISTING_NOT_FOUND"
	ErrCodeRuleNotFound       = "RULE_NOT_FOUND"
	ErrCodeInvalidCondition   = "INVALID_CONDITION"
)

// NewInvalidMarketplaceError は未対応マーケットプレイスエラーを生成する。
func NewInvalidMarketplaceError(marketplace string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMarketplace,
		Message:  fmt.Sprintf("未対応のマーケットプレイスです: %s", marketplace),
		Category: "validation",
		Action:   "mercado_livre、magalu、offer_feed のいずれかを指定してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているURLを指定してください。プライベートIPへのアクセスは許可されていません。",
	}
}

// NewConnectorFailedError はコネクタ呼び出し失敗エラーを生成する。
func NewConnectorFailedError(marketplace Marketplace, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeConnectorFailed,
		Message:  fmt.Sprintf("マーケットプレイス %s への問い合わせに失敗しました: %s", marketplace, reason),
		Category: "connector",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewListingNotFoundError は出品未検出エラーを生成する。
func NewListingNotFoundError(listingID string) *APIError {
	return &APIError{
		Code:     ErrCodeListingNotFound,
		Message:  fmt.Sprintf("指定された出品が見つかりません: %s", listingID),
		Category: "monitor",
		Action:   "出品IDを確認してください。",
	}
}

// NewInvalidConditionError は無効なアラート条件エラーを生成する。
func NewInvalidConditionError(operator string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCondition,
		Message:  fmt.Sprintf("無効なアラート条件演算子です: %s", operator),
		Category: "validation",
		Action:   "changed、decreased_by_pct、increased_by_pct のいずれかを指定してください。",
	}
}
