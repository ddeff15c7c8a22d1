// Package monitor は監視対象出品の変化検知とアラート発火のバックグラウンド処理を提供する。
// スケジューラ、サイクル実行、ベースライン抽出、条件評価、dedupe signatureを含む。
package monitor

import (
	"encoding/json"
	"reflect"
	"sort"

	"github.com/hitoshi/marketscope/internal/model"
)

// ExtractBaseline は正規化済み出品と生データから監視用ベースラインを抽出する。
// ベースラインは監視可能フィールドのみの射影で、タイムスタンプや説明文などの
// 揮発フィールドを含めない。値はJSONB往復後の表現と一致するよう
// JSONネイティブ型（string/float64/bool/[]any）のみで構築する。
func ExtractBaseline(listing *model.Listing, raw map[string]any) map[string]any {
	return map[string]any{
		"price":                      listing.Price,
		"title":                      listing.Title,
		"shipping_cost":              listing.ShippingCost,
		"variations":                 variationTokens(raw),
		"free_shipping":              listing.Badges.FreeShipping,
		"fulfillment":                listing.Badges.Fulfillment,
		"official_store":             listing.Badges.OfficialStore,
		"interest_free_installments": listing.Badges.InterestFreeInstallments,
	}
}

// variationTokens は生データのvariationsからソート済み・重複排除済みの
// 識別子リストを抽出する。各バリエーションはidフィールドがあればその
// 文字列表現、なければキーソート済みJSONを識別子とする。
// 同一データの2回の観測で決定的に同じリストになることだけが要件。
func variationTokens(raw map[string]any) []any {
	entries, ok := raw["variations"].([]any)
	if !ok || len(entries) == 0 {
		return []any{}
	}

	seen := make(map[string]bool)
	tokens := make([]string, 0, len(entries))
	for _, entry := range entries {
		token := variationToken(entry)
		if token == "" || seen[token] {
			continue
		}
		seen[token] = true
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	result := make([]any, 0, len(tokens))
	for _, t := range tokens {
		result = append(result, t)
	}
	return result
}

// variationToken はバリエーション1件の決定的な識別子を返す。
func variationToken(entry any) string {
	if m, ok := entry.(map[string]any); ok {
		if id, ok := m["id"].(string); ok && id != "" {
			return id
		}
		if id, ok := m["id"].(float64); ok {
			data, _ := json.Marshal(id)
			return string(data)
		}
	}
	// json.Marshalはmapのキーをソートするため出力は決定的
	data, err := json.Marshal(entry)
	if err != nil {
		return ""
	}
	return string(data)
}

// FieldChange はベースラインの1フィールドの変化を表す。
type FieldChange struct {
	Old any
	New any
}

// DiffBaselines は2つのベースラインをフィールドごとに比較し、
// 変化したフィールドの新旧値を返す。ネスト構造は深い等価性で比較する。
// 変化がない場合は空のmapを返す。
func DiffBaselines(previous, current map[string]any) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	for field, newValue := range current {
		oldValue, ok := previous[field]
		if !ok {
			continue // 旧ベースラインにないフィールドは変化とみなさない
		}
		if !reflect.DeepEqual(oldValue, newValue) {
			changes[field] = FieldChange{Old: oldValue, New: newValue}
		}
	}
	return changes
}
