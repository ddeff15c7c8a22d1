package connector

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hitoshi/marketscope/internal/model"
)

// Magalu はMagazine Luizaの検索ページをスクレイピングするコネクタ。
// 公開APIがないため、検索結果のHTMLから出品情報を抽出する。
// 出品者詳細（SellerDetailsProvider）には対応しない。
type Magalu struct {
	client    *Client
	sanitizer DescriptionSanitizer
	logger    *slog.Logger
	baseURL   string
}

// NewMagalu はMagaluコネクタを生成する。
func NewMagalu(client *Client, sanitizer DescriptionSanitizer, logger *slog.Logger, baseURL string) *Magalu {
	return &Magalu{
		client:    client,
		sanitizer: sanitizer,
		logger:    logger,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
	}
}

// Marketplace はマーケットプレイス識別子を返す。
func (c *Magalu) Marketplace() model.Marketplace {
	return model.MarketplaceMagalu
}

// Search は検索結果ページをスクレイピングして生データの出品リストを返す。
// filtersは現状未対応（Magaluの検索URLはパスベースのため）。
func (c *Magalu) Search(ctx context.Context, query string, _ map[string]string) ([]map[string]any, error) {
	start := time.Now()

	searchURL := fmt.Sprintf("%s/busca/%s/", c.baseURL, url.PathEscape(query))
	body, err := c.client.GetBody(ctx, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("Magalu検索ページの取得に失敗しました: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("Magalu検索ページのパースに失敗しました: %w", err)
	}

	var results []map[string]any
	doc.Find(`a[data-testid="product-card-container"]`).Each(func(i int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find(`h2[data-testid="product-title"]`).Text())
		if title == "" {
			return
		}

		href, _ := s.Attr("href")
		if href != "" && !strings.HasPrefix(href, "http") {
			href = c.baseURL + href
		}

		priceText := s.Find(`p[data-testid="price-value"]`).Text()
		originalText := s.Find(`p[data-testid="price-original"]`).Text()
		image, _ := s.Find("img").First().Attr("src")
		reviewText := strings.TrimSpace(s.Find(`span[format="score-count"]`).Text())

		results = append(results, map[string]any{
			"id":             magaluIDFromURL(href),
			"url":            href,
			"title":          title,
			"price":          parseBRL(priceText),
			"price_original": parseBRL(originalText),
			"image":          image,
			"review_count":   extractNumber(reviewText),
			"free_shipping":  strings.Contains(strings.ToLower(s.Text()), "frete grátis"),
			"position":       i + 1,
		})
	})

	c.logger.Info("マーケットプレイス検索が完了しました",
		slog.String("marketplace", string(c.Marketplace())),
		slog.String("query", query),
		slog.Int("item_count", len(results)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	return results, nil
}

// magaluIDFromURL は商品URLからSKU相当の識別子を取り出す。
// URL形式: https://www.magazineluiza.com.br/<slug>/p/<sku>/mo/soretcl/
func magaluIDFromURL(href string) string {
	parts := strings.Split(strings.Trim(href, "/"), "/")
	for i, p := range parts {
		if p == "p" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return href
}

// GetListingDetails は商品ページをスクレイピングして詳細を返す。
func (c *Magalu) GetListingDetails(ctx context.Context, listingID string) (map[string]any, error) {
	detailURL := fmt.Sprintf("%s/p/%s/", c.baseURL, url.PathEscape(listingID))
	body, err := c.client.GetBody(ctx, detailURL, nil)
	if err != nil {
		return nil, fmt.Errorf("Magalu商品ページの取得に失敗しました: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("Magalu商品ページのパースに失敗しました: %w", err)
	}

	title := strings.TrimSpace(doc.Find(`h1[data-testid="heading-product-title"]`).Text())
	description, _ := doc.Find(`div[data-testid="rich-content-container"]`).Html()

	var images []any
	doc.Find(`img[data-testid="media-gallery-image"]`).Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			images = append(images, src)
		}
	})

	return map[string]any{
		"id":          listingID,
		"url":         detailURL,
		"title":       title,
		"price":       parseBRL(doc.Find(`p[data-testid="price-value"]`).Text()),
		"description": description,
		"images":      images,
		"rating":      extractNumber(doc.Find(`span[format="score-count"]`).Text()),
	}, nil
}

// Normalize はスクレイピングした生データを標準形式のListingに変換する。
func (c *Magalu) Normalize(raw map[string]any) (model.Listing, error) {
	listingID := rawString(raw, "id")
	title := rawString(raw, "title")
	if listingID == "" || title == "" {
		return model.Listing{}, fmt.Errorf("IDまたはタイトルがない生データは正規化できません")
	}

	var media []model.MediaItem
	if image := rawString(raw, "image"); image != "" {
		media = append(media, model.MediaItem{URL: image, Type: model.MediaTypePhoto, IsCover: true})
	}
	for i, entry := range rawSlice(raw, "images") {
		src, ok := entry.(string)
		if !ok || src == "" {
			continue
		}
		media = append(media, model.MediaItem{
			URL:     src,
			Type:    model.MediaTypePhoto,
			IsCover: len(media) == 0 && i == 0,
		})
	}

	price := rawFloat(raw, "price")
	return model.Listing{
		Marketplace:        model.MarketplaceMagalu,
		ListingID:          listingID,
		URL:                rawString(raw, "url"),
		Title:              title,
		Price:              price,
		PriceOriginal:      rawFloat(raw, "price_original"),
		FinalPriceEstimate: price,
		Media:              media,
		Seller: model.Seller{
			Reputation: model.ReputationUnknown,
		},
		SocialProof: model.SocialProof{
			ReviewCount: rawInt(raw, "review_count"),
			Rating:      rawFloat(raw, "rating"),
		},
		Badges: model.Badges{
			FreeShipping: rawBool(raw, "free_shipping"),
		},
		TextBlocks: model.TextBlocks{
			Description: c.sanitizer.SanitizeText(rawString(raw, "description")),
		},
		SEOTerms:         extractTitleTerms(title),
		ScrapedAt:        time.Now(),
		PositionInSearch: rawInt(raw, "position"),
	}, nil
}

var _ Connector = (*Magalu)(nil)
