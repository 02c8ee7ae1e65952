// Package knowledge provides reference snippets that ground the
// vision-language prompt in curated medical context.
package knowledge

import (
	"context"
	"sort"
	"strings"
)

// Augmenter retrieves up to k reference snippets relevant to a query.
// Implementations must be safe for concurrent use.
type Augmenter interface {
	Lookup(ctx context.Context, query string, k int) ([]string, error)
}

// healthCorpus is the built-in women's health knowledge base.
var healthCorpus = []string{
	"Normal vaginal discharge is typically clear or milky white in color and has little to no odor. The consistency can vary throughout the menstrual cycle, becoming thicker before menstruation and thinner after.",
	"Yellow or green vaginal discharge, especially when accompanied by a strong fishy or foul odor, may indicate bacterial vaginosis or other infections requiring medical attention.",
	"Thick, white, cottage cheese-like discharge with itching and burning sensations often indicates a yeast infection. This is common and usually treatable with over-the-counter medications.",
	"Discharge characteristics change throughout the menstrual cycle due to hormonal fluctuations. Ovulation typically produces clear, stretchy discharge similar to egg whites.",
	"Bacterial vaginosis occurs when the natural bacterial balance is disrupted, often causing gray discharge with a fishy odor. It's the most common vaginal infection in women of reproductive age.",
	"Hormonal acne is common during menstrual cycles and typically appears on the jawline, chin, and lower face. It's caused by fluctuations in estrogen and progesterone levels.",
	"Skin redness and irritation in intimate areas can be caused by harsh soaps, tight clothing, allergic reactions to products, or infections requiring different treatments.",
	"Iron deficiency anemia is the most common cause of low hemoglobin in women of reproductive age, often driven by heavy menstrual bleeding or insufficient dietary iron intake.",
	"Pale nail beds, fatigue, shortness of breath, and dizziness can indicate anemia. A blood test is the only reliable way to measure hemoglobin levels.",
	"Iron-rich foods include red meat, leafy greens, legumes, and fortified cereals. Pairing them with vitamin C sources improves iron absorption.",
	"Seek immediate medical attention for sudden changes in discharge color, consistency, or odor, especially if accompanied by itching, burning, pain, fever, or pelvic pain.",
	"Persistent vaginal symptoms lasting more than a few days, recurrent infections, or unusual bleeding patterns should be evaluated by a healthcare provider.",
	"Tracking discharge patterns alongside menstrual cycles can help identify normal variations versus potential health concerns requiring medical evaluation.",
	"Maintain intimate hygiene with gentle, unscented products. Avoid douching, which can disrupt natural bacterial balance and increase infection risk.",
	"Regular gynecological check-ups, safe sexual practices, and maintaining overall health support reproductive wellness and early detection of concerns.",
}

// stopWords are excluded from keyword matching.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "can": true,
	"are": true, "this": true, "that": true, "may": true, "your": true,
	"have": true, "has": true, "from": true, "not": true, "any": true,
	"its": true, "it's": true, "you": true,
}

type keywordAugmenter struct {
	corpus []string
	tokens []map[string]bool
}

// NewKeywordAugmenter builds an in-memory Augmenter over the built-in
// corpus, ranking snippets by keyword overlap with the query. Extra snippets
// may be appended to the corpus.
func NewKeywordAugmenter(extra ...string) Augmenter {
	corpus := append(append([]string{}, healthCorpus...), extra...)
	tokens := make([]map[string]bool, len(corpus))
	for i, doc := range corpus {
		tokens[i] = tokenize(doc)
	}
	return &keywordAugmenter{corpus: corpus, tokens: tokens}
}

func (a *keywordAugmenter) Lookup(ctx context.Context, query string, k int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	queryTokens := tokenize(query)
	type scored struct {
		idx   int
		score int
	}
	var matches []scored
	for i, docTokens := range a.tokens {
		overlap := 0
		for tok := range queryTokens {
			if docTokens[tok] {
				overlap++
			}
		}
		if overlap > 0 {
			matches = append(matches, scored{idx: i, score: overlap})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if len(matches) > k {
		matches = matches[:k]
	}

	results := make([]string, 0, len(matches))
	for _, m := range matches {
		results = append(results, a.corpus[m.idx])
	}
	return results, nil
}

func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, word := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '\''
	}) {
		if len(word) >= 3 && !stopWords[word] {
			tokens[word] = true
		}
	}
	return tokens
}
