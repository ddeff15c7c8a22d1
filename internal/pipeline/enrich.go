package pipeline

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/marketscope/internal/model"
)

// seoStopWords はSEO用語抽出から除外するポルトガル語のストップワード。
var seoStopWords = map[string]bool{
	"com": true, "para": true, "por": true, "que": true,
	"sem": true, "uma": true, "uns": true, "umas": true,
	"como": true, "mais": true, "mas": true, "seu": true,
	"sua": true, "dos": true, "das": true, "num": true,
	"numa": true, "este": true, "essa": true, "isso": true,
	"aqui": true, "pode": true, "seus": true,
}

// termPunctuation はトークンの前後から除去する句読点文字。
const termPunctuation = ".,;:!?\"'()-/"

// maxSEOTerms は抽出するSEO用語の上限。
const maxSEOTerms = 30

// descriptionTermLimit は用語抽出に使用する説明文の先頭文字数。
const descriptionTermLimit = 500

// Enrich は出品リストの欠損フィールドを補完する。
// seo_termsが3語未満の出品はテキストコンテンツから再生成し、
// final_price_estimateが0の出品はprice + shipping_costで再計算する。
// すでに値が設定されている出品には手を付けないため冪等。
func Enrich(listings []model.Listing) []model.Listing {
	enriched := make([]model.Listing, len(listings))
	for i, l := range listings {
		enriched[i] = enrichOne(l)
	}
	return enriched
}

func enrichOne(listing model.Listing) model.Listing {
	if len(listing.SEOTerms) < 3 {
		listing.SEOTerms = extractTerms(listing)
	}
	if listing.FinalPriceEstimate == 0 {
		listing.FinalPriceEstimate = listing.Price + listing.ShippingCost
	}
	return listing
}

// extractTerms はタイトル・箇条書き・説明文冒頭・属性値から
// 頻度順のSEO用語を抽出する。同頻度は初出順を維持する。
func extractTerms(listing model.Listing) []string {
	sources := []string{listing.Title}
	sources = append(sources, listing.TextBlocks.Bullets...)
	if desc := listing.TextBlocks.Description; desc != "" {
		sources = append(sources, truncateRunes(desc, descriptionTermLimit))
	}

	attrs := listing.Attributes
	for _, val := range []string{attrs.Color, attrs.Material, attrs.ProductType, attrs.Fabric} {
		if val != "" {
			sources = append(sources, val)
		}
	}

	text := strings.ToLower(strings.Join(sources, " "))

	freq := make(map[string]int)
	firstSeen := make(map[string]int)
	order := 0
	for _, raw := range strings.Fields(text) {
		w := strings.Trim(raw, termPunctuation)
		if utf8.RuneCountInString(w) <= 3 || seoStopWords[w] {
			continue
		}
		if _, ok := freq[w]; !ok {
			firstSeen[w] = order
			order++
		}
		freq[w]++
	}

	terms := make([]string, 0, len(freq))
	for w := range freq {
		terms = append(terms, w)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return firstSeen[terms[i]] < firstSeen[terms[j]]
	})

	if len(terms) > maxSEOTerms {
		terms = terms[:maxSEOTerms]
	}
	return terms
}

// truncateRunes は文字列をルーン数でn文字に切り詰める。
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
