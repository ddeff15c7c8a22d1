// Package pipeline は収集済み出品の重複排除・補完・市場集計を行う。
package pipeline

import (
	"strings"

	"github.com/hitoshi/marketscope/internal/model"
)

// titleKey はタイトルの正規化キーを生成する。
// 小文字化し、ハイフンをスペースに置換した上で連続空白を1つに畳む。
func titleKey(title string) string {
	replaced := strings.ReplaceAll(strings.ToLower(title), "-", " ")
	return strings.Join(strings.Fields(replaced), " ")
}

// Dedup は出品リストから重複を除去する。
// (marketplace, listing_id)のキーと正規化タイトルキーの両方で判定し、
// いずれかが既出の出品を落とす。最初の出現を残し、入力順を保持する。
func Dedup(listings []model.Listing) []model.Listing {
	seen := make(map[string]bool)
	seenTitles := make(map[string]bool)
	unique := make([]model.Listing, 0, len(listings))

	for _, item := range listings {
		key := string(item.Marketplace) + ":" + item.ListingID
		tk := titleKey(item.Title)
		if seen[key] {
			continue
		}
		if tk != "" && seenTitles[tk] {
			continue
		}
		seen[key] = true
		if tk != "" {
			seenTitles[tk] = true
		}
		unique = append(unique, item)
	}

	return unique
}
