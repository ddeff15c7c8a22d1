// Package model はドメインモデルを定義する。
package model

import "time"

// Marketplace は対応マーケットプレイスを表す。
type Marketplace string

const (
	// MarketplaceMercadoLivre はMercado Livre（メルカドリブレ）。
	MarketplaceMercadoLivre Marketplace = "mercado_livre"
	// MarketplaceMagalu はMagazine Luiza（Magalu）。
	MarketplaceMagalu Marketplace = "magalu"
	// MarketplaceOfferFeed はRSS/Atom形式の商品オファーフィード経由で取り込まれた出品。
	MarketplaceOfferFeed Marketplace = "offer_feed"
)

// MediaType は出品メディアの種別を表す。
type MediaType string

const (
	// MediaTypePhoto は写真。
	MediaTypePhoto MediaType = "photo"
	// MediaTypeVideo は動画。
	MediaTypeVideo MediaType = "video"
)

// SellerReputation は出品者の評価ティアを表す。
type SellerReputation string

const (
	// ReputationPlatinum はプラチナ評価。
	ReputationPlatinum SellerReputation = "platinum"
	// ReputationGold はゴールド評価。
	ReputationGold SellerReputation = "gold"
	// ReputationSilver はシルバー評価。
	ReputationSilver SellerReputation = "silver"
	// ReputationBronze はブロンズ評価。
	ReputationBronze SellerReputation = "bronze"
	// ReputationNew は新規出品者。
	ReputationNew SellerReputation = "new"
	// ReputationUnknown は評価不明。
	ReputationUnknown SellerReputation = "unknown"
)

// Attributes は商品の物理的・技術的属性を表す。
// マーケットプレイス固有の自由属性はExtrasに保持する。
type Attributes struct {
	Color       string
	Material    string
	WidthCM     float64
	DepthCM     float64
	HeightCM    float64
	WeightKG    float64
	Density     string
	ProductType string
	SeatCount   int
	Fabric      string
	Extras      map[string]string
}

// Filled は値が設定されている属性名の集合を返す。
// SEOスコアラーの必須属性チェックで使用する。
func (a Attributes) Filled() map[string]bool {
	filled := make(map[string]bool)
	if a.Color != "" {
		filled["color"] = true
	}
	if a.Material != "" {
		filled["material"] = true
	}
	if a.WidthCM > 0 {
		filled["width_cm"] = true
	}
	if a.DepthCM > 0 {
		filled["depth_cm"] = true
	}
	if a.HeightCM > 0 {
		filled["height_cm"] = true
	}
	if a.WeightKG > 0 {
		filled["weight_kg"] = true
	}
	if a.Density != "" {
		filled["density"] = true
	}
	if a.ProductType != "" {
		filled["product_type"] = true
	}
	if a.SeatCount > 0 {
		filled["seat_count"] = true
	}
	if a.Fabric != "" {
		filled["fabric"] = true
	}
	for k := range a.Extras {
		filled[k] = true
	}
	return filled
}

// MediaItem は出品の画像または動画を表す。
// IsCoverがtrueのアイテムが意味的なカバー画像。未指定の場合は先頭が優先される。
type MediaItem struct {
	URL     string
	Type    MediaType
	IsCover bool
}

// SellerMetrics は出品者の販売実績指標を表す。取得できない場合はnil。
type SellerMetrics struct {
	Sales12M        int
	CancellationPct float64
	ComplaintPct    float64
	LateShipmentPct float64
}

// Seller は出品者を表す。
type Seller struct {
	ID              string
	Name            string
	Reputation      SellerReputation
	YearsActive     int
	Metrics         *SellerMetrics
	IsOfficialStore bool
}

// SocialProof は出品の社会的証明（レビュー・評価・推定販売数）を表す。
type SocialProof struct {
	ReviewCount    int
	Rating         float64
	QuestionCount  int
	EstimatedSales int
}

// Badges は出品のバッジ（差別化要素）フラグを表す。
type Badges struct {
	FreeShipping             bool
	Fulfillment              bool
	OfficialStore            bool
	Sponsored                bool
	InterestFreeInstallments bool
}

// TextBlocks は出品のテキストコンテンツを表す。
type TextBlocks struct {
	Bullets     []string
	Description string
}

// Listing は任意のマーケットプレイスの出品を正規化した標準形式。
// 各Connectorが生成し、Pipeline・Scoring・Monitorが消費する。
// 正規化後はイミュータブルな値として扱う。
type Listing struct {
	// 識別情報
	Marketplace Marketplace
	ListingID   string
	URL         string

	// 価格
	Price              float64
	PriceOriginal      float64 // 割引前価格。なければ0
	ShippingCost       float64
	FinalPriceEstimate float64 // 不変条件: 明示的な上書きがない限り Price + ShippingCost

	// カテゴリ
	CategoryPath []string
	CategoryID   string

	// コンテンツ
	Title      string
	Attributes Attributes
	TextBlocks TextBlocks

	// メディア
	Media []MediaItem

	// 出品者
	Seller Seller

	// 社会的証明
	SocialProof SocialProof

	// バッジ
	Badges Badges

	// SEO（重複なし・出現順保持のトークンリスト）
	SEOTerms []string

	// 収集メタデータ
	ScrapedAt        time.Time
	PositionInSearch int
}

// MediaCount はメディアアイテム数を返す。
func (l *Listing) MediaCount() int {
	return len(l.Media)
}

// PhotoCount は写真メディアの数を返す。
func (l *Listing) PhotoCount() int {
	n := 0
	for _, m := range l.Media {
		if m.Type == MediaTypePhoto || m.Type == "" {
			n++
		}
	}
	return n
}
