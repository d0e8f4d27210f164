package retriever

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/payerwatch/payerwatch-mcp/internal/embedder"
	"github.com/payerwatch/payerwatch-mcp/internal/storage"
	"github.com/payerwatch/payerwatch-mcp/pkg/types"
)

const (
	// DefaultTopK is the number of results returned when the caller doesn't say
	DefaultTopK = 5

	// MaxTopK caps the result count
	MaxTopK = 50

	// DefaultSemanticWeight is the semantic share of the combined score
	DefaultSemanticWeight = 0.7

	// SemanticThreshold drops semantic candidates scoring below it
	SemanticThreshold = 0.3
)

// SearchRequest contains parameters for one retrieval
type SearchRequest struct {
	Query          string
	PayerID        *int64
	RuleType       *types.RuleType
	TopK           int
	SemanticWeight *float64 // 0..1, share of the semantic score in the blend; nil means the default. 0 is keyword-only.

	UseCache bool
	CacheTTL time.Duration
}

// SearchResponse contains ranked results and retrieval metadata
type SearchResponse struct {
	Results      []types.SearchResult
	TotalResults int

	SemanticCandidates int
	KeywordCandidates  int
	Degraded           bool // true when the semantic phase failed and only keywords ranked

	Duration time.Duration
	CacheHit bool
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Retriever answers natural-language questions against the current rules by
// blending vector similarity with keyword matching.
type Retriever struct {
	storage  storage.Storage
	embedder embedder.Embedder
	cache    *lru.Cache[[32]byte, *cacheEntry]
	cacheMu  sync.RWMutex
}

// New creates a new Retriever instance
func New(st storage.Storage, emb embedder.Embedder) *Retriever {
	cache, err := lru.New[[32]byte, *cacheEntry](1000)
	if err != nil {
		// This should never happen with valid size parameter
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	return &Retriever{
		storage:  st,
		embedder: emb,
		cache:    cache,
	}
}

// Search runs the hybrid retrieval pipeline for one query.
func (r *Retriever) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := r.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	if req.UseCache {
		if cached := r.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	semantic, degraded := r.semanticPhase(ctx, req)
	keyword, err := r.keywordPhase(ctx, req)
	if err != nil {
		if degraded {
			return nil, fmt.Errorf("both retrieval phases failed: %w", err)
		}
		return nil, err
	}

	response := r.fuse(ctx, req, semantic, keyword, degraded)
	response.Duration = time.Since(startTime)

	if req.UseCache && len(response.Results) > 0 {
		r.storeInCache(req, response)
	}

	return response, nil
}

// scored pairs a rule with its per-phase scores
type scored struct {
	rule     *storage.Rule
	semantic float64
	keyword  float64
}

// semanticPhase embeds the query and scores every embedded current rule by
// cosine similarity, keeping the 2*TopK best above the threshold. A provider
// failure degrades retrieval to the keyword phase instead of failing it.
func (r *Retriever) semanticPhase(ctx context.Context, req SearchRequest) ([]scored, bool) {
	queryEmb, err := r.embedder.Embed(ctx, req.Query)
	if err != nil {
		log.Printf("query embedding failed, degrading to keyword-only retrieval: %v", err)
		return nil, true
	}

	rules, err := r.storage.CurrentRulesWithEmbeddings(ctx, req.PayerID, req.RuleType)
	if err != nil {
		log.Printf("loading embedded rules failed, degrading to keyword-only retrieval: %v", err)
		return nil, true
	}

	candidates := make([]scored, 0, len(rules))
	for _, rule := range rules {
		sim := storage.CosineSimilarity(queryEmb.Vector, rule.Embedding)
		if sim < SemanticThreshold {
			continue
		}
		candidates = append(candidates, scored{rule: rule, semantic: sim})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].semantic != candidates[j].semantic {
			return candidates[i].semantic > candidates[j].semantic
		}
		return candidates[i].rule.ID < candidates[j].rule.ID
	})

	keep := 2 * req.TopK
	if len(candidates) > keep {
		candidates = candidates[:keep]
	}
	return candidates, false
}

// keywordPhase selects rules matching the derived lexical terms and scores
// each by how often the raw query occurs in its content.
func (r *Retriever) keywordPhase(ctx context.Context, req SearchRequest) ([]scored, error) {
	payers, err := r.storage.ListPayers(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list payers for term derivation: %w", err)
	}
	payerNames := make([]string, len(payers))
	for i, p := range payers {
		payerNames[i] = p.Name
	}

	terms := DeriveTerms(req.Query, payerNames)

	rules, err := r.storage.SearchRulesKeyword(ctx, terms, req.PayerID, req.RuleType, 2*req.TopK)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	candidates := make([]scored, 0, len(rules))
	for _, rule := range rules {
		candidates = append(candidates, scored{
			rule:    rule,
			keyword: KeywordScore(rule.Content, req.Query),
		})
	}
	return candidates, nil
}

// fuse merges both candidate sets by rule id, blends the scores and returns
// the TopK best. Ties break toward the lower rule id so ranking is stable.
func (r *Retriever) fuse(ctx context.Context, req SearchRequest, semantic, keyword []scored, degraded bool) *SearchResponse {
	merged := make(map[int64]*scored)
	for i := range semantic {
		c := semantic[i]
		merged[c.rule.ID] = &c
	}
	for i := range keyword {
		if existing, ok := merged[keyword[i].rule.ID]; ok {
			existing.keyword = keyword[i].keyword
		} else {
			c := keyword[i]
			merged[c.rule.ID] = &c
		}
	}

	w := *req.SemanticWeight
	if degraded {
		// No semantic signal; rank purely by keyword score
		w = 0
	}

	type ranked struct {
		scored
		combined float64
	}
	all := make([]ranked, 0, len(merged))
	for _, c := range merged {
		all = append(all, ranked{
			scored:   *c,
			combined: w*c.semantic + (1-w)*c.keyword,
		})
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].combined != all[j].combined {
			return all[i].combined > all[j].combined
		}
		return all[i].rule.ID < all[j].rule.ID
	})

	if len(all) > req.TopK {
		all = all[:req.TopK]
	}

	payerNames := make(map[int64]string)
	results := make([]types.SearchResult, 0, len(all))
	for _, c := range all {
		name, ok := payerNames[c.rule.PayerID]
		if !ok {
			if payer, err := r.storage.GetPayer(ctx, c.rule.PayerID); err == nil {
				name = payer.Name
			}
			payerNames[c.rule.PayerID] = name
		}
		results = append(results, types.SearchResult{
			RuleID:        c.rule.ID,
			PayerID:       c.rule.PayerID,
			PayerName:     name,
			RuleType:      c.rule.RuleType,
			Version:       c.rule.Version,
			Title:         c.rule.Title,
			Content:       c.rule.Content,
			SourceURL:     c.rule.SourceURL,
			EffectiveDate: c.rule.EffectiveDate,

			SemanticScore: c.semantic,
			KeywordScore:  c.keyword,
			CombinedScore: c.combined,
		})
	}

	return &SearchResponse{
		Results:            results,
		TotalResults:       len(results),
		SemanticCandidates: len(semantic),
		KeywordCandidates:  len(keyword),
		Degraded:           degraded,
	}
}

// KeywordScore counts case-insensitive occurrences of the query in the
// content, scaled by content length and clamped to 1.0. Long rules need
// proportionally more hits to score the same; that keeps boilerplate-heavy
// rules from dominating on a single mention.
func KeywordScore(content, query string) float64 {
	if content == "" || query == "" {
		return 0
	}
	count := strings.Count(strings.ToLower(content), strings.ToLower(query))
	score := float64(count) / float64(len(content)) * 100
	if score > 1.0 {
		return 1.0
	}
	return score
}

// validateRequest ensures search request is valid
func (r *Retriever) validateRequest(req *SearchRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return fmt.Errorf("query cannot be empty")
	}

	if req.TopK <= 0 {
		req.TopK = DefaultTopK
	}
	if req.TopK > MaxTopK {
		req.TopK = MaxTopK
	}

	if req.SemanticWeight == nil {
		w := DefaultSemanticWeight
		req.SemanticWeight = &w
	}
	if *req.SemanticWeight < 0 || *req.SemanticWeight > 1 {
		return fmt.Errorf("semantic weight must be in [0,1], got %f", *req.SemanticWeight)
	}

	if req.CacheTTL == 0 {
		req.CacheTTL = 1 * time.Hour
	}

	return nil
}

// checkCache looks up cached search results, dropping expired entries
func (r *Retriever) checkCache(req SearchRequest) *SearchResponse {
	hash := computeQueryHash(req)
	now := time.Now()

	r.cacheMu.RLock()
	entry, found := r.cache.Get(hash)
	if !found {
		r.cacheMu.RUnlock()
		return nil
	}

	if now.After(entry.expiresAt) {
		r.cacheMu.RUnlock()
		r.cacheMu.Lock()
		r.cache.Remove(hash)
		r.cacheMu.Unlock()
		return nil
	}

	response := copyResponse(entry.response)
	r.cacheMu.RUnlock()
	return response
}

// storeInCache saves search results to cache
func (r *Retriever) storeInCache(req SearchRequest, response *SearchResponse) {
	entry := &cacheEntry{
		response:  copyResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}

	r.cacheMu.Lock()
	r.cache.Add(computeQueryHash(req), entry)
	r.cacheMu.Unlock()
}

// InvalidateCache drops every cached query. Called after ingestion so stale
// rankings never outlive a rule change.
func (r *Retriever) InvalidateCache() {
	r.cacheMu.Lock()
	r.cache.Purge()
	r.cacheMu.Unlock()
}

// copyResponse creates a deep copy of a SearchResponse so cached entries are
// never mutated by callers.
func copyResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Results = make([]types.SearchResult, len(src.Results))
	copy(dst.Results, src.Results)
	for i, result := range src.Results {
		if result.EffectiveDate != nil {
			date := *result.EffectiveDate
			dst.Results[i].EffectiveDate = &date
		}
	}
	return &dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	if req.PayerID != nil {
		fmt.Fprintf(&data, "%d", *req.PayerID)
	}
	data.WriteString("|")
	if req.RuleType != nil {
		data.WriteString(string(*req.RuleType))
	}
	data.WriteString("|")
	fmt.Fprintf(&data, "%d|%.2f", req.TopK, *req.SemanticWeight)

	return sha256.Sum256([]byte(data.String()))
}
