// Package security はコネクタ向けのセキュリティ機能を提供する。
//
// DescriptionSanitizerService はマーケットプレイスから収集した説明文HTMLを
// プレーンテキストに変換する。収集元のHTMLは信頼できないため、
// bluemondayの許可リストベースのポリシーで全タグを除去した上で、
// エンティティの復元と空白の正規化を行う。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// DescriptionSanitizerService は説明文サニタイズ機能のインターフェースを定義する。
// 各コネクタのnormalize処理で、スナップショット保存前に使用される。
type DescriptionSanitizerService interface {
	// SanitizeText はHTMLコンテンツからタグを全て除去しプレーンテキストを返す。
	// script, iframe, style等の危険なタグはコンテンツごと除去される。
	// HTMLエンティティ（&amp;等）は元の文字に復元される。
	// 連続する空白・改行は1つのスペースに畳まれる。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(rawHTML string) string
}

// descriptionSanitizer はDescriptionSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type descriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer はDescriptionSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは全要素・全属性を不許可とするため、出力にタグは一切残らない。
func NewDescriptionSanitizer() *descriptionSanitizer {
	return &descriptionSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText はHTMLコンテンツからタグを除去しプレーンテキストを返す。
func (s *descriptionSanitizer) SanitizeText(rawHTML string) string {
	stripped := s.policy.Sanitize(rawHTML)
	unescaped := html.UnescapeString(stripped)
	return strings.Join(strings.Fields(unescaped), " ")
}
