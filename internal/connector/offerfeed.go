package connector

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/marketscope/internal/model"
)

// brlPattern は説明文からの価格抽出に使用するレアル表記のパターン。
var brlPattern = regexp.MustCompile(`R\$\s*[\d.]+(?:,\d{2})?`)

// OfferFeed はRSS/Atom形式の商品オファーフィードを取り込むコネクタ。
// アフィリエイトフィードや自社フィードなど、API/HTMLを持たない
// 供給元からの収集に使用する。
type OfferFeed struct {
	client    *Client
	sanitizer DescriptionSanitizer
	logger    *slog.Logger
	parser    *gofeed.Parser
	feedURL   string
}

// NewOfferFeed はOfferFeedコネクタを生成する。
func NewOfferFeed(client *Client, sanitizer DescriptionSanitizer, logger *slog.Logger, feedURL string) *OfferFeed {
	return &OfferFeed{
		client:    client,
		sanitizer: sanitizer,
		logger:    logger,
		parser:    gofeed.NewParser(),
		feedURL:   feedURL,
	}
}

// Marketplace はマーケットプレイス識別子を返す。
func (c *OfferFeed) Marketplace() model.Marketplace {
	return model.MarketplaceOfferFeed
}

// fetchItems はフィードを取得してパースする。
func (c *OfferFeed) fetchItems(ctx context.Context) ([]*gofeed.Item, error) {
	body, err := c.client.GetBody(ctx, c.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("オファーフィードの取得に失敗しました: %w", err)
	}

	feed, err := c.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("オファーフィードのパースに失敗しました: %w", err)
	}
	return feed.Items, nil
}

// Search はフィードを取得し、タイトルにクエリを含むアイテムを返す。
// クエリが空の場合は全アイテムを返す。
func (c *OfferFeed) Search(ctx context.Context, query string, _ map[string]string) ([]map[string]any, error) {
	start := time.Now()

	items, err := c.fetchItems(ctx)
	if err != nil {
		return nil, err
	}

	queryLower := strings.ToLower(query)
	var results []map[string]any
	for i, item := range items {
		if queryLower != "" && !strings.Contains(strings.ToLower(item.Title), queryLower) {
			continue
		}
		results = append(results, c.itemToRaw(item, i+1))
	}

	c.logger.Info("マーケットプレイス検索が完了しました",
		slog.String("marketplace", string(c.Marketplace())),
		slog.String("query", query),
		slog.Int("item_count", len(results)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	return results, nil
}

// GetListingDetails はGUID（またはリンク）が一致するアイテムを返す。
func (c *OfferFeed) GetListingDetails(ctx context.Context, listingID string) (map[string]any, error) {
	items, err := c.fetchItems(ctx)
	if err != nil {
		return nil, err
	}

	for i, item := range items {
		if item.GUID == listingID || item.Link == listingID {
			return c.itemToRaw(item, i+1), nil
		}
	}
	return nil, fmt.Errorf("フィード内に出品が見つかりません: %s", listingID)
}

// itemToRaw はフィードアイテムを生データのmapに変換する。
func (c *OfferFeed) itemToRaw(item *gofeed.Item, position int) map[string]any {
	id := item.GUID
	if id == "" {
		id = item.Link
	}

	var images []any
	for _, enc := range item.Enclosures {
		if strings.HasPrefix(enc.Type, "image/") {
			images = append(images, enc.URL)
		}
	}
	if item.Image != nil && item.Image.URL != "" {
		images = append(images, item.Image.URL)
	}

	return map[string]any{
		"id":          id,
		"url":         item.Link,
		"title":       item.Title,
		"description": item.Description,
		"price":       priceFromText(item.Title + " " + item.Description),
		"images":      images,
		"position":    position,
	}
}

// priceFromText はテキスト中の最初のレアル表記価格を抽出する。
func priceFromText(text string) float64 {
	match := brlPattern.FindString(text)
	if match == "" {
		return 0
	}
	return parseBRL(match)
}

// Normalize はフィードアイテムの生データを標準形式のListingに変換する。
func (c *OfferFeed) Normalize(raw map[string]any) (model.Listing, error) {
	listingID := rawString(raw, "id")
	title := rawString(raw, "title")
	if listingID == "" || title == "" {
		return model.Listing{}, fmt.Errorf("IDまたはタイトルがない生データは正規化できません")
	}

	var media []model.MediaItem
	for i, entry := range rawSlice(raw, "images") {
		src, ok := entry.(string)
		if !ok || src == "" {
			continue
		}
		media = append(media, model.MediaItem{URL: src, Type: model.MediaTypePhoto, IsCover: i == 0})
	}

	price := rawFloat(raw, "price")
	return model.Listing{
		Marketplace:        model.MarketplaceOfferFeed,
		ListingID:          listingID,
		URL:                rawString(raw, "url"),
		Title:              title,
		Price:              price,
		FinalPriceEstimate: price,
		Media:              media,
		Seller: model.Seller{
			Reputation: model.ReputationUnknown,
		},
		TextBlocks: model.TextBlocks{
			Description: c.sanitizer.SanitizeText(rawString(raw, "description")),
		},
		SEOTerms:         extractTitleTerms(title),
		ScrapedAt:        time.Now(),
		PositionInSearch: rawInt(raw, "position"),
	}, nil
}

var _ Connector = (*OfferFeed)(nil)
