package model

// ToMap はListingをJSONB保存用のマップ表現に変換する。
// スナップショットのnormalized_dataおよびlistings_currentの
// normalized_dataカラムに使用する。キーはスネークケース。
func (l *Listing) ToMap() map[string]any {
	media := make([]any, 0, len(l.Media))
	for _, m := range l.Media {
		media = append(media, map[string]any{
			"url":      m.URL,
			"type":     string(m.Type),
			"is_cover": m.IsCover,
		})
	}

	bullets := make([]any, 0, len(l.TextBlocks.Bullets))
	for _, b := range l.TextBlocks.Bullets {
		bullets = append(bullets, b)
	}

	seoTerms := make([]any, 0, len(l.SEOTerms))
	for _, t := range l.SEOTerms {
		seoTerms = append(seoTerms, t)
	}

	doc := map[string]any{
		"marketplace":          string(l.Marketplace),
		"listing_id":           l.ListingID,
		"url":                  l.URL,
		"title":                l.Title,
		"price":                l.Price,
		"price_original":       l.PriceOriginal,
		"shipping_cost":        l.ShippingCost,
		"final_price_estimate": l.FinalPriceEstimate,
		"category_id":          l.CategoryID,
		"media":                media,
		"media_count":          l.MediaCount(),
		"seller": map[string]any{
			"id":                l.Seller.ID,
			"name":              l.Seller.Name,
			"reputation":        string(l.Seller.Reputation),
			"is_official_store": l.Seller.IsOfficialStore,
		},
		"social_proof": map[string]any{
			"review_count":    l.SocialProof.ReviewCount,
			"rating":          l.SocialProof.Rating,
			"question_count":  l.SocialProof.QuestionCount,
			"estimated_sales": l.SocialProof.EstimatedSales,
		},
		"badges": map[string]any{
			"free_shipping":              l.Badges.FreeShipping,
			"fulfillment":                l.Badges.Fulfillment,
			"official_store":             l.Badges.OfficialStore,
			"sponsored":                  l.Badges.Sponsored,
			"interest_free_installments": l.Badges.InterestFreeInstallments,
		},
		"text_blocks": map[string]any{
			"bullets":     bullets,
			"description": l.TextBlocks.Description,
		},
		"seo_terms":  seoTerms,
		"scraped_at": l.ScrapedAt,
	}
	return doc
}
