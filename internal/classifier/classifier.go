package classifier

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"CCNLMonitor/internal/domain"
	"CCNLMonitor/internal/ports"
)

const (
	// MinConfidence is the gate below which a candidate is dropped.
	MinConfidence = 0.3

	titleWeight = 2
	bodyWeight  = 1
)

// Category is a named keyword set.
type Category struct {
	Name     string
	Keywords []string
}

// Rules holds every keyword table used by the classifier.
type Rules struct {
	Sectors             []Category
	UpdateTypes         []Category
	Keywords            []string
	HighPriorityPhrases []string
	HighPrioritySectors []string
}

// DefaultRules returns the keyword tables for Italian CCNL announcements.
func DefaultRules() Rules {
	return Rules{
		Sectors: []Category{
			{Name: "metalmeccanico", Keywords: []string{"metalmeccanic", "federmeccanica", "fiom", "uilm", "siderurg"}},
			{Name: "commercio", Keywords: []string{"commercio", "terziario", "confcommercio", "distribuzione", "filcams"}},
			{Name: "edilizia", Keywords: []string{"edil", "costruzioni", "cantier", "fillea"}},
			{Name: "chimico", Keywords: []string{"chimic", "farmaceutic", "federchimica", "filctem"}},
			{Name: "tessile", Keywords: []string{"tessil", "abbigliamento", "calzatur"}},
			{Name: "alimentare", Keywords: []string{"alimentar", "agroalimentare", "panificazione", "flai"}},
			{Name: "trasporti", Keywords: []string{"trasport", "logistica", "autotrasporto", "ferrovi"}},
			{Name: "sanita", Keywords: []string{"sanità", "sanitari", "ospedal", "aiop"}},
			{Name: "bancario", Keywords: []string{"bancari", "credito", "assicurazion", "fabi"}},
			{Name: "turismo", Keywords: []string{"turismo", "alberghi", "pubblici esercizi", "federalberghi", "ristorazione"}},
			{Name: "telecomunicazioni", Keywords: []string{"telecomunicazion", "tlc", "asstel", "slc"}},
		},
		UpdateTypes: []Category{
			{Name: "rinnovo", Keywords: []string{"rinnovo", "rinnovato", "ipotesi di accordo", "piattaforma"}},
			{Name: "aumento_retributivo", Keywords: []string{"aumento", "aumenti", "minimi retributivi", "tabelle retributive", "una tantum", "euro lordi"}},
			{Name: "modifica_normativa", Keywords: []string{"modifica", "normativa", "orario di lavoro", "ferie", "permessi", "straordinario"}},
			{Name: "accordo_integrativo", Keywords: []string{"integrativo", "secondo livello", "aziendale", "welfare"}},
			{Name: "firma", Keywords: []string{"firmato", "firma", "sottoscritto", "sottoscrizione"}},
			{Name: "scadenza", Keywords: []string{"scadenza", "scaduto", "proroga", "disdetta"}},
		},
		Keywords: []string{
			"ccnl", "contratto collettivo", "contratto nazionale", "rinnovo", "accordo", "retribuzione",
			"minimi", "aumento", "sindacat", "firmato", "welfare", "orario",
		},
		HighPriorityPhrases: []string{
			"firmato", "aumento", "urgente", "scadenza", "sciopero", "entrata in vigore", "arretrati", "una tantum",
		},
		HighPrioritySectors: []string{"metalmeccanico", "commercio", "sanita"},
	}
}

// Classifier scores sector, update type, priority and confidence of feed items.
type Classifier struct {
	sectors     []Category
	updateTypes []Category
	keywords    []string
	highPhrases []string
	highSectors map[string]struct{}
	semantic    ports.SemanticClassifier
	logger      *slog.Logger
}

// New builds a classifier. semantic may be nil.
func New(rules Rules, semantic ports.SemanticClassifier, logger *slog.Logger) *Classifier {
	c := &Classifier{
		sectors:     normalizeCategories(rules.Sectors),
		updateTypes: normalizeCategories(rules.UpdateTypes),
		keywords:    lowerAll(rules.Keywords),
		highPhrases: lowerAll(rules.HighPriorityPhrases),
		highSectors: map[string]struct{}{},
		semantic:    semantic,
		logger:      logger,
	}
	for _, s := range rules.HighPrioritySectors {
		c.highSectors[s] = struct{}{}
	}
	return c
}

// ClassifySector returns the best scoring sector or "" when nothing matched.
func (c *Classifier) ClassifySector(title, body string) string {
	return bestCategory(c.sectors, title, body)
}

// ClassifyUpdateType returns the best scoring update type or "unknown".
func (c *Classifier) ClassifyUpdateType(title, body string) string {
	if name := bestCategory(c.updateTypes, title, body); name != "" {
		return name
	}
	return domain.UnknownUpdateType
}

// MatchedKeywords lists the general CCNL keywords found in text.
func (c *Classifier) MatchedKeywords(text string) []string {
	text = strings.ToLower(text)
	var found []string
	for _, kw := range c.keywords {
		if strings.Contains(text, kw) {
			found = append(found, kw)
		}
	}
	return found
}

// CalculatePriority scores urgency in [0.5, 1.0].
func (c *Classifier) CalculatePriority(text, sector string) float64 {
	text = strings.ToLower(text)
	priority := 0.5
	for _, phrase := range c.highPhrases {
		if strings.Contains(text, phrase) {
			priority += 0.1
		}
	}
	if _, ok := c.highSectors[sector]; ok && sector != "" {
		priority += 0.2
	}
	return clamp(priority)
}

// CalculateConfidence scores classification certainty in [0, 1].
func CalculateConfidence(keywords []string, sector, updateType string) float64 {
	confidence := 0.1 * float64(len(keywords))
	if confidence > 0.5 {
		confidence = 0.5
	}
	if sector != "" {
		confidence += 0.3
	}
	if updateType != "" && updateType != domain.UnknownUpdateType {
		confidence += 0.2
	}
	return clamp(confidence)
}

// Detect scores one item. It returns ErrLowConfidence when the item does not pass the gate.
func (c *Classifier) Detect(item domain.FeedItem) (domain.Detection, error) {
	text := item.Text()
	sector := c.ClassifySector(item.Title, item.Body())
	updateType := c.ClassifyUpdateType(item.Title, item.Body())
	keywords := c.MatchedKeywords(text)
	confidence := CalculateConfidence(keywords, sector, updateType)

	det := domain.Detection{
		Item:       item,
		Sector:     sector,
		UpdateType: updateType,
		Confidence: confidence,
		Keywords:   keywords,
		Priority:   c.CalculatePriority(text, sector),
	}
	if confidence < MinConfidence {
		return det, domain.ErrLowConfidence
	}
	return det, nil
}

// DetectUpdates keeps items passing the confidence gate, ordered by priority
// then confidence, both descending.
func (c *Classifier) DetectUpdates(items []domain.FeedItem) []domain.Detection {
	var detections []domain.Detection
	for _, item := range items {
		det, err := c.Detect(item)
		if err != nil {
			c.debug("candidate dropped", "guid", item.GUID, "confidence", det.Confidence)
			continue
		}
		detections = append(detections, det)
	}

	sort.SliceStable(detections, func(i, j int) bool {
		if detections[i].Priority != detections[j].Priority {
			return detections[i].Priority > detections[j].Priority
		}
		return detections[i].Confidence > detections[j].Confidence
	})
	return detections
}

// ClassifyUpdate merges the rule-based result with the semantic classifier, if any.
func (c *Classifier) ClassifyUpdate(ctx context.Context, item domain.FeedItem) domain.Classification {
	det, _ := c.Detect(item)
	result := domain.Classification{
		Sector:     det.Sector,
		UpdateType: det.UpdateType,
		Confidence: det.Confidence,
		Priority:   det.Priority,
		Keywords:   det.Keywords,
		Method:     domain.MethodRuleBased,
	}

	if c.semantic == nil {
		return result
	}

	sem, err := c.semantic.Classify(ctx, item)
	if err != nil {
		c.warn("semantic classifier unavailable", "guid", item.GUID, "error", err)
		return result
	}

	result.Method = domain.MethodHybrid
	result.Confidence = clamp((det.Confidence + clamp(sem.Confidence)) / 2)
	result.DetectedChanges = sem.DetectedChanges
	if result.UpdateType == domain.UnknownUpdateType && sem.UpdateType != "" {
		result.UpdateType = sem.UpdateType
	}
	if result.Sector == "" {
		result.Sector = sem.Sector
	}
	return result
}

// Healthy reports whether keyword tables are loaded.
func (c *Classifier) Healthy(context.Context) bool {
	return len(c.sectors) > 0 && len(c.updateTypes) > 0
}

// bestCategory returns the highest scoring category. Categories are kept in
// alphabetical order so ties resolve to the alphabetically first name.
func bestCategory(categories []Category, title, body string) string {
	title = strings.ToLower(title)
	body = strings.ToLower(body)

	best, bestScore := "", 0
	for _, cat := range categories {
		score := 0
		for _, kw := range cat.Keywords {
			switch {
			case strings.Contains(title, kw):
				score += titleWeight
			case strings.Contains(body, kw):
				score += bodyWeight
			}
		}
		if score > bestScore {
			best, bestScore = cat.Name, score
		}
	}
	return best
}

func normalizeCategories(in []Category) []Category {
	out := make([]Category, 0, len(in))
	for _, cat := range in {
		out = append(out, Category{Name: cat.Name, Keywords: lowerAll(cat.Keywords)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func (c *Classifier) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Classifier) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
