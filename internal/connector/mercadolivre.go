package connector

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/marketscope/internal/model"
)

// mlSearchLimit はMercado Livre検索APIの1リクエストあたりの最大件数。
const mlSearchLimit = 50

// mlMaxMediaItems は正規化時に取り込む画像の上限。
const mlMaxMediaItems = 10

// DescriptionSanitizer は説明文のプレーンテキスト化のインターフェース。
type DescriptionSanitizer interface {
	SanitizeText(rawHTML string) string
}

// MercadoLivre はMercado Livre公式APIを使用するコネクタ。
// 出品者詳細の取得（SellerDetailsProvider）に対応する。
type MercadoLivre struct {
	client      *Client
	sanitizer   DescriptionSanitizer
	logger      *slog.Logger
	baseURL     string
	accessToken string
}

// NewMercadoLivre はMercadoLivreコネクタを生成する。
// accessTokenは空でもよい（公開検索のみ利用可能）。
func NewMercadoLivre(client *Client, sanitizer DescriptionSanitizer, logger *slog.Logger, baseURL, accessToken string) *MercadoLivre {
	return &MercadoLivre{
		client:      client,
		sanitizer:   sanitizer,
		logger:      logger,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		accessToken: accessToken,
	}
}

// Marketplace はマーケットプレイス識別子を返す。
func (c *MercadoLivre) Marketplace() model.Marketplace {
	return model.MarketplaceMercadoLivre
}

func (c *MercadoLivre) headers() map[string]string {
	if c.accessToken == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.accessToken}
}

// Search はMLBサイトのキーワード検索を実行する。
// 対応フィルタ: category, price_min, price_max, condition。
func (c *MercadoLivre) Search(ctx context.Context, query string, filters map[string]string) ([]map[string]any, error) {
	start := time.Now()

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", fmt.Sprintf("%d", mlSearchLimit))
	for _, key := range []string{"category", "price_min", "price_max", "condition", "offset"} {
		if v := filters[key]; v != "" {
			params.Set(key, v)
		}
	}

	searchURL := fmt.Sprintf("%s/sites/MLB/search?%s", c.baseURL, params.Encode())

	var response struct {
		Results []map[string]any `json:"results"`
	}
	if err := c.client.GetJSON(ctx, searchURL, c.headers(), &response); err != nil {
		return nil, fmt.Errorf("Mercado Livre検索に失敗しました: %w", err)
	}

	c.logger.Info("マーケットプレイス検索が完了しました",
		slog.String("marketplace", string(c.Marketplace())),
		slog.String("query", query),
		slog.Int("item_count", len(response.Results)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	return response.Results, nil
}

// GetListingDetails は出品詳細を取得する。
// 説明文は別エンドポイントのため、取得できた場合のみdescriptionキーに合成する。
func (c *MercadoLivre) GetListingDetails(ctx context.Context, listingID string) (map[string]any, error) {
	var item map[string]any
	itemURL := fmt.Sprintf("%s/items/%s", c.baseURL, url.PathEscape(listingID))
	if err := c.client.GetJSON(ctx, itemURL, c.headers(), &item); err != nil {
		return nil, fmt.Errorf("出品詳細の取得に失敗しました: %w", err)
	}

	var desc struct {
		PlainText string `json:"plain_text"`
	}
	descURL := fmt.Sprintf("%s/items/%s/description", c.baseURL, url.PathEscape(listingID))
	if err := c.client.GetJSON(ctx, descURL, c.headers(), &desc); err != nil {
		c.logger.Warn("説明文の取得に失敗しました",
			slog.String("listing_id", listingID),
			slog.String("error", err.Error()),
		)
	} else {
		item["description"] = desc.PlainText
	}

	return item, nil
}

// GetSellerDetails は出品者プロファイルを取得する。
func (c *MercadoLivre) GetSellerDetails(ctx context.Context, sellerID string) (map[string]any, error) {
	var seller map[string]any
	sellerURL := fmt.Sprintf("%s/users/%s", c.baseURL, url.PathEscape(sellerID))
	if err := c.client.GetJSON(ctx, sellerURL, c.headers(), &seller); err != nil {
		return nil, fmt.Errorf("出品者詳細の取得に失敗しました: %w", err)
	}
	return seller, nil
}

// Normalize はML APIの生データを標準形式のListingに変換する。
func (c *MercadoLivre) Normalize(raw map[string]any) (model.Listing, error) {
	listingID := rawString(raw, "id")
	if listingID == "" {
		return model.Listing{}, fmt.Errorf("出品IDがない生データは正規化できません")
	}

	price := rawFloat(raw, "price")
	shipping := rawMap(raw, "shipping")
	shippingCost := rawFloat(shipping, "cost")

	listing := model.Listing{
		Marketplace:        model.MarketplaceMercadoLivre,
		ListingID:          listingID,
		URL:                rawString(raw, "permalink"),
		Title:              rawString(raw, "title"),
		Price:              price,
		PriceOriginal:      rawFloat(raw, "original_price"),
		ShippingCost:       shippingCost,
		FinalPriceEstimate: price + shippingCost,
		CategoryID:         rawString(raw, "category_id"),
		Attributes:         c.normalizeAttributes(rawSlice(raw, "attributes")),
		Media:              c.normalizeMedia(raw),
		Seller:             c.normalizeSeller(raw),
		SocialProof:        c.normalizeSocialProof(raw),
		Badges:             c.normalizeBadges(raw),
		TextBlocks:         c.normalizeTextBlocks(raw),
		SEOTerms:           extractTitleTerms(rawString(raw, "title")),
		ScrapedAt:          time.Now(),
	}
	if listing.CategoryID != "" {
		listing.CategoryPath = []string{listing.CategoryID}
	}
	return listing, nil
}

// mlAttributeKeys はML属性IDから標準属性フィールドへの対応。
func (c *MercadoLivre) normalizeAttributes(rawAttrs []any) model.Attributes {
	values := make(map[string]string)
	for _, entry := range rawAttrs {
		attr, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if id := rawString(attr, "id"); id != "" {
			values[id] = rawString(attr, "value_name")
		}
	}

	return model.Attributes{
		Color:       values["COLOR"],
		Material:    values["MATERIAL"],
		Fabric:      values["FABRIC_DESIGN"],
		WidthCM:     extractNumber(values["WIDTH"]),
		DepthCM:     extractNumber(values["DEPTH"]),
		HeightCM:    extractNumber(values["HEIGHT"]),
		WeightKG:    extractNumber(values["WEIGHT"]),
		ProductType: values["SOFA_TYPE"],
		SeatCount:   int(extractNumber(values["SEATING_CAPACITY"])),
	}
}

func (c *MercadoLivre) normalizeMedia(raw map[string]any) []model.MediaItem {
	pictures := rawSlice(raw, "pictures")
	// 検索結果にはpicturesがなくthumbnailのみの場合がある
	if len(pictures) == 0 {
		if thumb := rawString(raw, "thumbnail"); thumb != "" {
			return []model.MediaItem{{URL: thumb, Type: model.MediaTypePhoto, IsCover: true}}
		}
		return nil
	}

	if len(pictures) > mlMaxMediaItems {
		pictures = pictures[:mlMaxMediaItems]
	}

	media := make([]model.MediaItem, 0, len(pictures))
	for i, entry := range pictures {
		pic, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		media = append(media, model.MediaItem{
			URL:     rawString(pic, "url"),
			Type:    model.MediaTypePhoto,
			IsCover: i == 0,
		})
	}
	return media
}

func (c *MercadoLivre) normalizeSeller(raw map[string]any) model.Seller {
	sellerData := rawMap(raw, "seller")
	sellerID := rawString(sellerData, "id")
	if sellerID == "" {
		if id := rawFloat(sellerData, "id"); id > 0 {
			sellerID = fmt.Sprintf("%.0f", id)
		}
	}
	if sellerID == "" {
		if id := rawFloat(raw, "seller_id"); id > 0 {
			sellerID = fmt.Sprintf("%.0f", id)
		}
	}

	reputation := rawMap(sellerData, "seller_reputation")

	var metrics *model.SellerMetrics
	if m := rawMap(reputation, "metrics"); m != nil {
		metrics = &model.SellerMetrics{
			Sales12M:        rawInt(rawMap(rawMap(m, "sales"), "completed"), "value"),
			CancellationPct: rawFloat(rawMap(m, "cancellations"), "rate") * 100,
			ComplaintPct:    rawFloat(rawMap(m, "claims"), "rate") * 100,
			LateShipmentPct: rawFloat(rawMap(m, "delayed_handling_time"), "rate") * 100,
		}
	}

	isOfficial := raw["official_store_id"] != nil
	for _, tag := range rawSlice(sellerData, "tags") {
		if s, ok := tag.(string); ok && (s == "eshop" || s == "brand") {
			isOfficial = true
		}
	}

	return model.Seller{
		ID:              sellerID,
		Name:            rawString(sellerData, "nickname"),
		Reputation:      mapMLReputation(rawString(reputation, "level_id")),
		Metrics:         metrics,
		IsOfficialStore: isOfficial,
	}
}

// mapMLReputation はMLのlevel_id（例: "5_green"）を評価ティアに変換する。
func mapMLReputation(levelID string) model.SellerReputation {
	switch strings.ToLower(levelID) {
	case "5_black", "5_green", "4_platinum":
		return model.ReputationPlatinum
	case "3_gold", "4_light_green":
		return model.ReputationGold
	case "2_silver", "3_yellow":
		return model.ReputationSilver
	case "1_bronze", "2_orange", "1_red":
		return model.ReputationBronze
	case "":
		return model.ReputationUnknown
	default:
		return model.ReputationNew
	}
}

func (c *MercadoLivre) normalizeSocialProof(raw map[string]any) model.SocialProof {
	reviews := rawMap(raw, "reviews")
	return model.SocialProof{
		ReviewCount:    rawInt(reviews, "total"),
		Rating:         rawFloat(reviews, "rating_average"),
		EstimatedSales: rawInt(raw, "sold_quantity"),
	}
}

func (c *MercadoLivre) normalizeBadges(raw map[string]any) model.Badges {
	shipping := rawMap(raw, "shipping")
	installments := rawMap(raw, "installments")

	return model.Badges{
		FreeShipping:             rawBool(shipping, "free_shipping"),
		Fulfillment:              rawString(shipping, "logistic_type") == "fulfillment",
		OfficialStore:            raw["official_store_id"] != nil,
		Sponsored:                rawString(raw, "listing_type_id") == "gold_pro",
		InterestFreeInstallments: installments != nil && rawFloat(installments, "rate") == 0 && rawInt(installments, "quantity") > 1,
	}
}

func (c *MercadoLivre) normalizeTextBlocks(raw map[string]any) model.TextBlocks {
	var bullets []string
	for _, entry := range rawSlice(raw, "sale_terms") {
		term, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		name := rawString(term, "name")
		value := rawString(term, "value_name")
		if name != "" && value != "" {
			bullets = append(bullets, fmt.Sprintf("%s: %s", name, value))
		}
	}

	description := rawString(raw, "description")
	if description == "" {
		if d := rawMap(raw, "description"); d != nil {
			description = rawString(d, "plain_text")
		}
	}

	return model.TextBlocks{
		Bullets:     bullets,
		Description: c.sanitizer.SanitizeText(description),
	}
}

var (
	_ Connector             = (*MercadoLivre)(nil)
	_ SellerDetailsProvider = (*MercadoLivre)(nil)
)
