package connector

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/hitoshi/marketscope/internal/model"
)

// Connector はマーケットプレイス1つの収集・正規化インターフェース。
type Connector interface {
	// Marketplace はこのコネクタが担当するマーケットプレイスを返す。
	Marketplace() model.Marketplace

	// Search はキーワード検索を実行し生データの出品リストを返す。
	// filtersはマーケットプレイス固有の検索パラメータ（category, price_min等）。
	Search(ctx context.Context, query string, filters map[string]string) ([]map[string]any, error)

	// GetListingDetails は出品1件の詳細な生データを取得する。
	GetListingDetails(ctx context.Context, listingID string) (map[string]any, error)

	// Normalize は生データを標準形式のListingに変換する。
	// ネットワークI/Oは行わない。
	Normalize(raw map[string]any) (model.Listing, error)
}

// SellerDetailsProvider は出品者詳細取得のオプション機能。
// すべてのコネクタが実装するわけではないため、対応可否は
// Registry構築時に1回だけ解決される（呼び出しごとの型アサートはしない）。
type SellerDetailsProvider interface {
	GetSellerDetails(ctx context.Context, sellerID string) (map[string]any, error)
}

// Registry はマーケットプレイスからコネクタを引くテーブル。
type Registry struct {
	connectors      map[model.Marketplace]Connector
	sellerProviders map[model.Marketplace]SellerDetailsProvider
}

// NewRegistry はRegistryを生成する。
// 各コネクタのオプション機能の有無はここで解決される。
func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{
		connectors:      make(map[model.Marketplace]Connector),
		sellerProviders: make(map[model.Marketplace]SellerDetailsProvider),
	}
	for _, c := range connectors {
		r.connectors[c.Marketplace()] = c
		if provider, ok := c.(SellerDetailsProvider); ok {
			r.sellerProviders[c.Marketplace()] = provider
		}
	}
	return r
}

// Get は指定マーケットプレイスのコネクタを返す。
func (r *Registry) Get(marketplace model.Marketplace) (Connector, bool) {
	c, ok := r.connectors[marketplace]
	return c, ok
}

// SellerDetails は指定マーケットプレイスの出品者詳細機能を返す。
// 対応していない場合はfalse。
func (r *Registry) SellerDetails(marketplace model.Marketplace) (SellerDetailsProvider, bool) {
	p, ok := r.sellerProviders[marketplace]
	return p, ok
}

// titleStopWords はタイトルからのSEO用語抽出で除外する語。
// パイプラインのEnricherより広いテキストを対象としないため、
// 冠詞・前置詞を含む短い語のリストで足りる。
var titleStopWords = map[string]bool{
	"de": true, "do": true, "da": true, "dos": true, "das": true,
	"em": true, "para": true, "com": true, "sem": true,
	"o": true, "a": true, "os": true, "as": true,
	"um": true, "uma": true, "por": true, "mais": true, "ao": true,
	"e": true, "ou": true, "se": true,
	"na": true, "no": true, "nas": true, "nos": true,
}

// extractTitleTerms はタイトルからSEO用語を抽出する。
// 英数字以外をスペースに置換してトークン化し、ストップワードと
// 2文字以下の語を除外する。重複は除去し初出順を保持する。
func extractTitleTerms(title string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if isAlnum(r) || r == ' ' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	seen := make(map[string]bool)
	var terms []string
	for _, w := range strings.Fields(b.String()) {
		if len([]rune(w)) <= 2 || titleStopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
	}
	return terms
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') ||
		(r >= 'à' && r <= 'ÿ') // アクセント付きラテン小文字
}

var numberPattern = regexp.MustCompile(`[\d.]+`)

// extractNumber は文字列から最初の数値を取り出す（例: "200 cm" → 200）。
// 数値が見つからない場合は0を返す。
func extractNumber(value string) float64 {
	match := numberPattern.FindString(value)
	if match == "" {
		return 0
	}
	n, err := strconv.ParseFloat(strings.TrimSuffix(match, "."), 64)
	if err != nil {
		return 0
	}
	return n
}

// parseBRL はブラジルレアル表記の価格文字列を数値に変換する
// （例: "R$ 1.299,90" → 1299.90）。解析できない場合は0。
func parseBRL(text string) float64 {
	cleaned := strings.NewReplacer("R$", "", " ", "", " ", "").Replace(text)
	cleaned = strings.TrimSpace(cleaned)
	// 千区切りのピリオドを除去し、小数点のカンマをピリオドへ
	cleaned = strings.ReplaceAll(cleaned, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return n
}
