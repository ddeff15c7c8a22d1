package scoring

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hitoshi/marketscope/internal/model"
)

// SEOスコアの重み。
const (
	seoWeightTitle      = 0.35
	seoWeightAttributes = 0.20
	seoWeightContent    = 0.15
	seoWeightKeywords   = 0.20
	seoWeightCompliance = 0.10
)

// keywordNeutralScore は競合がない場合のキーワードサブスコア。
const keywordNeutralScore = 70

// ptArticles はタイトル冒頭でペナルティ対象となるポルトガル語の冠詞。
var ptArticles = map[string]bool{
	"o": true, "a": true, "os": true, "as": true,
	"um": true, "uma": true, "uns": true, "umas": true,
}

// SEOScorer は出品の検索最適化度を採点する。
type SEOScorer struct{}

// NewSEOScorer はSEOScorerを生成する。
func NewSEOScorer() *SEOScorer {
	return &SEOScorer{}
}

// Score は出品のSEOスコアを計算する。
// competitorsは空でもよく、その場合キーワードサブスコアは中立値になる。
func (s *SEOScorer) Score(listing *model.Listing, competitors []model.Listing) model.ScoreBreakdown {
	rules := RulesFor(listing.Marketplace)

	var suggestions []string

	titleScore, titleSugg := s.scoreTitle(listing.Title, rules)
	suggestions = append(suggestions, titleSugg...)

	attrScore, attrSugg := s.scoreAttributes(listing.Attributes, rules)
	suggestions = append(suggestions, attrSugg...)

	contentScore, contentSugg := s.scoreContent(listing.TextBlocks, rules)
	suggestions = append(suggestions, contentSugg...)

	keywordScore, keywordSugg := s.scoreKeywords(listing, competitors)
	suggestions = append(suggestions, keywordSugg...)

	complianceScore, complianceSugg := s.scoreCompliance(listing.Title, rules)
	suggestions = append(suggestions, complianceSugg...)

	return buildBreakdown([]weightedFactor{
		{"title", titleScore, seoWeightTitle},
		{"attributes", attrScore, seoWeightAttributes},
		{"content", contentScore, seoWeightContent},
		{"keywords", keywordScore, seoWeightKeywords},
		{"compliance", complianceScore, seoWeightCompliance},
	}, suggestions)
}

// scoreTitle はタイトルの長さ・冠詞・大文字乱用を採点する。
func (s *SEOScorer) scoreTitle(title string, rules RuleSet) (float64, []string) {
	score := 100.0
	var suggestions []string

	length := utf8.RuneCountInString(title)
	switch {
	case length > rules.TitleMaxLen:
		over := float64(length - rules.TitleMaxLen)
		penalty := over * 2
		if penalty > 40 {
			penalty = 40
		}
		score -= penalty
		suggestions = append(suggestions,
			fmt.Sprintf("Título excede %d caracteres (atual: %d)", rules.TitleMaxLen, length))
	case length < rules.TitleMinLen:
		score -= 25
		suggestions = append(suggestions,
			fmt.Sprintf("Título muito curto (mínimo recomendado: %d caracteres)", rules.TitleMinLen))
	case length < rules.TitleRecommendedLen:
		score -= 10
		suggestions = append(suggestions,
			fmt.Sprintf("Título abaixo do comprimento recomendado de %d caracteres", rules.TitleRecommendedLen))
	}

	words := strings.Fields(title)
	if len(words) > 0 && ptArticles[strings.ToLower(words[0])] {
		score -= 10
		suggestions = append(suggestions, "Título começa com artigo; inicie com a palavra-chave principal")
	}

	if countAllCapsWords(words) > 2 {
		score -= 10
		suggestions = append(suggestions, "Título com excesso de palavras em caixa alta")
	}

	return score, suggestions
}

// countAllCapsWords は完全に大文字で構成される単語の数を返す。
// 数字や記号のみの単語はカウントしない。
func countAllCapsWords(words []string) int {
	count := 0
	for _, w := range words {
		hasLetter := false
		allUpper := true
		for _, r := range w {
			if unicode.IsLetter(r) {
				hasLetter = true
				if !unicode.IsUpper(r) {
					allUpper = false
					break
				}
			}
		}
		if hasLetter && allUpper {
			count++
		}
	}
	return count
}

// scoreAttributes は必須属性の充足率を採点する。
func (s *SEOScorer) scoreAttributes(attrs model.Attributes, rules RuleSet) (float64, []string) {
	required := rules.RequiredAttributes
	if len(required) == 0 {
		return 100, nil
	}

	filled := attrs.Filled()
	var missing []string
	for _, name := range required {
		if !filled[name] {
			missing = append(missing, name)
		}
	}

	score := 100 * (1 - float64(len(missing))/float64(len(required)))
	var suggestions []string
	if len(missing) > 0 {
		suggestions = append(suggestions,
			fmt.Sprintf("Preencher atributos obrigatórios: %s", strings.Join(missing, ", ")))
	}
	return score, suggestions
}

// scoreContent は箇条書きと説明文の充実度を採点する。
// 説明文が最小文字数の1/4未満の場合は実質的に内容がないとみなし追加減点する。
func (s *SEOScorer) scoreContent(text model.TextBlocks, rules RuleSet) (float64, []string) {
	score := 100.0
	var suggestions []string

	bulletCount := len(text.Bullets)
	if bulletCount == 0 {
		score -= 35
		suggestions = append(suggestions, "Adicionar bullets destacando os principais benefícios")
	} else if bulletCount < rules.IdealBulletCount {
		score -= float64(rules.IdealBulletCount-bulletCount) * 7
		suggestions = append(suggestions,
			fmt.Sprintf("Adicionar mais bullets (ideal: %d, atual: %d)", rules.IdealBulletCount, bulletCount))
	}

	descLen := utf8.RuneCountInString(text.Description)
	if descLen == 0 {
		score -= 30
		suggestions = append(suggestions, "Adicionar descrição do produto")
	} else if descLen < rules.MinDescriptionLen {
		score -= 15
		if descLen < rules.MinDescriptionLen/4 {
			score -= 15
		}
		suggestions = append(suggestions,
			fmt.Sprintf("Descrição curta (mínimo recomendado: %d caracteres, atual: %d)", rules.MinDescriptionLen, descLen))
	}

	return score, suggestions
}

// scoreKeywords はタイトルが競合の高頻度用語をどれだけ含むかを採点する。
// 競合上位20件のseo_termsから高頻度15語を取り、タイトル内の含有率をスコア化する。
func (s *SEOScorer) scoreKeywords(listing *model.Listing, competitors []model.Listing) (float64, []string) {
	if len(competitors) == 0 {
		return keywordNeutralScore, nil
	}

	topTerms := topCompetitorTerms(competitors, 20, 15)
	if len(topTerms) == 0 {
		return keywordNeutralScore, nil
	}

	titleLower := strings.ToLower(listing.Title)
	present := 0
	var missing []string
	for _, term := range topTerms {
		if strings.Contains(titleLower, term) {
			present++
		} else {
			missing = append(missing, term)
		}
	}

	score := float64(present) / float64(len(topTerms)) * 100

	var suggestions []string
	if len(missing) > 0 {
		if len(missing) > 5 {
			missing = missing[:5]
		}
		suggestions = append(suggestions,
			fmt.Sprintf("Incluir termos de alto valor no título: %s", strings.Join(missing, ", ")))
	}
	return score, suggestions
}

// topCompetitorTerms は競合maxCompetitors件のseo_termsを頻度集計し
// 上位maxTerms語を返す。同頻度は初出順。
func topCompetitorTerms(competitors []model.Listing, maxCompetitors, maxTerms int) []string {
	if len(competitors) > maxCompetitors {
		competitors = competitors[:maxCompetitors]
	}

	freq := make(map[string]int)
	firstSeen := make(map[string]int)
	order := 0
	for _, c := range competitors {
		for _, t := range c.SEOTerms {
			if _, ok := freq[t]; !ok {
				firstSeen[t] = order
				order++
			}
			freq[t]++
		}
	}

	terms := make([]string, 0, len(freq))
	for t := range freq {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return firstSeen[terms[i]] < firstSeen[terms[j]]
	})

	if len(terms) > maxTerms {
		terms = terms[:maxTerms]
	}
	return terms
}

// scoreCompliance はマーケットプレイスの禁止用語を採点する。
func (s *SEOScorer) scoreCompliance(title string, rules RuleSet) (float64, []string) {
	score := 100.0
	titleLower := strings.ToLower(title)

	var suggestions []string
	for _, term := range rules.ForbiddenTerms {
		if strings.Contains(titleLower, term) {
			score -= 20
			suggestions = append(suggestions,
				fmt.Sprintf("Remover termo promocional proibido do título: %q", term))
		}
	}
	return score, suggestions
}
