package monitor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DedupeSignature は{rule_id, listing_id, changes}のSHA-256署名を計算する。
// json.Marshalはmapのキーをソートするため、同一の変化集合からは常に
// 同じ署名が得られる。dedupe window内の再発火抑制の照合キーとして使用する。
func DedupeSignature(ruleID, listingID string, changes map[string]FieldChange) (string, error) {
	payload := map[string]any{
		"rule_id":    ruleID,
		"listing_id": listingID,
		"changes":    changesToMap(changes),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("dedupe signatureのシリアライズに失敗しました: %w", err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// changesToMap は変化集合をイベント保存用のmap表現に変換する。
func changesToMap(changes map[string]FieldChange) map[string]any {
	result := make(map[string]any, len(changes))
	for field, change := range changes {
		result[field] = map[string]any{
			"old": change.Old,
			"new": change.New,
		}
	}
	return result
}

// ContentHash は{raw, normalized, derived}全体のSHA-256ハッシュを計算する。
// スナップショットのコンテンツアドレス重複排除に使用する。
func ContentHash(rawData, normalizedData, derivedData map[string]any) (string, error) {
	payload := map[string]any{
		"raw":        rawData,
		"normalized": normalizedData,
		"derived":    derivedData,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("コンテンツハッシュのシリアライズに失敗しました: %w", err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
