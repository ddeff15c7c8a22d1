// Package scoring は出品の多因子ヒューリスティックスコアリングを提供する。
// 各スコアラーは出品と競合バッチを受け取り、[0, 100]のスコアと改善提案を返す
// 純粋関数であり、永続状態を持たない。
package scoring

import "github.com/hitoshi/marketscope/internal/model"

// RuleSet はマーケットプレイス固有の出品ルールを表す。
// 継承ではなくデータとして保持し、marketplaceRulesテーブルで引く。
type RuleSet struct {
	TitleMaxLen         int
	TitleMinLen         int
	TitleRecommendedLen int
	IdealBulletCount    int
	MinDescriptionLen   int
	RequiredAttributes  []string
	ForbiddenTerms      []string
}

// marketplaceRules はマーケットプレイスごとのルールテーブル。
// Mercado Livreの禁止用語はタイトル内のプロモーション文言に対する
// 公式ポリシーに基づく。
var marketplaceRules = map[model.Marketplace]RuleSet{
	model.MarketplaceMercadoLivre: {
		TitleMaxLen:         60,
		TitleMinLen:         15,
		TitleRecommendedLen: 45,
		IdealBulletCount:    5,
		MinDescriptionLen:   300,
		RequiredAttributes:  []string{"color", "material", "width_cm", "depth_cm", "height_cm"},
		ForbiddenTerms: []string{
			"promoção", "oferta", "envio grátis",
			"frete grátis", "compra garantida", "brinde",
		},
	},
	model.MarketplaceMagalu: {
		TitleMaxLen:         100,
		TitleMinLen:         15,
		TitleRecommendedLen: 60,
		IdealBulletCount:    4,
		MinDescriptionLen:   200,
		RequiredAttributes:  []string{"color", "material", "product_type"},
	},
	model.MarketplaceOfferFeed: {
		TitleMaxLen:         120,
		TitleMinLen:         10,
		TitleRecommendedLen: 70,
		IdealBulletCount:    3,
		MinDescriptionLen:   100,
		RequiredAttributes:  []string{"color", "material"},
	},
}

// defaultRules は未知のマーケットプレイスに適用する保守的なルール。
var defaultRules = RuleSet{
	TitleMaxLen:         60,
	TitleMinLen:         15,
	TitleRecommendedLen: 45,
	IdealBulletCount:    5,
	MinDescriptionLen:   200,
	RequiredAttributes:  []string{"color", "material"},
}

// RulesFor はマーケットプレイスのルールセットを返す。
func RulesFor(marketplace model.Marketplace) RuleSet {
	if rules, ok := marketplaceRules[marketplace]; ok {
		return rules
	}
	return defaultRules
}
