package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CCNLMonitor/internal/domain"
)

type stubSemantic struct {
	result domain.SemanticResult
	err    error
}

func (s stubSemantic) Classify(context.Context, domain.FeedItem) (domain.SemanticResult, error) {
	return s.result, s.err
}

func TestClassifySectorWeightsTitleMatches(t *testing.T) {
	t.Parallel()

	c := New(DefaultRules(), nil, nil)

	// Title match (2) beats a single body match (1).
	assert.Equal(t, "commercio", c.ClassifySector("CCNL Commercio", "accordo con impatti sulla logistica"))
	// Two body matches (2) beat one body match (1).
	assert.Equal(t, "trasporti", c.ClassifySector("Novità", "logistica e autotrasporto, una nota sul commercio"))
	assert.Equal(t, "", c.ClassifySector("Meteo", "previsioni per domani"))
}

func TestClassifySectorTieBreaksAlphabetically(t *testing.T) {
	t.Parallel()

	rules := Rules{
		Sectors: []Category{
			{Name: "zeta", Keywords: []string{"comune"}},
			{Name: "alfa", Keywords: []string{"comune"}},
		},
	}
	c := New(rules, nil, nil)

	assert.Equal(t, "alfa", c.ClassifySector("termine comune", ""))
}

func TestClassifyUpdateTypeUnknownWhenNothingMatches(t *testing.T) {
	t.Parallel()

	c := New(DefaultRules(), nil, nil)

	assert.Equal(t, domain.UnknownUpdateType, c.ClassifyUpdateType("Comunicato stampa", "nessun contenuto rilevante"))
	assert.Equal(t, "rinnovo", c.ClassifyUpdateType("Rinnovo del contratto", ""))
}

func TestCalculatePriority(t *testing.T) {
	t.Parallel()

	c := New(DefaultRules(), nil, nil)

	assert.InDelta(t, 0.5, c.CalculatePriority("comunicato", ""), 1e-9)
	assert.InDelta(t, 0.7, c.CalculatePriority("firmato aumento", "edilizia"), 1e-9)
	assert.InDelta(t, 0.9, c.CalculatePriority("firmato aumento", "metalmeccanico"), 1e-9)
	assert.InDelta(t, 1.0, c.CalculatePriority("firmato aumento urgente scadenza sciopero arretrati", "commercio"), 1e-9)
}

func TestCalculateConfidence(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.0, CalculateConfidence(nil, "", domain.UnknownUpdateType), 1e-9)
	assert.InDelta(t, 0.2, CalculateConfidence([]string{"a", "b"}, "", domain.UnknownUpdateType), 1e-9)
	assert.InDelta(t, 0.5, CalculateConfidence([]string{"a", "b", "c", "d", "e", "f", "g"}, "", ""), 1e-9)
	assert.InDelta(t, 1.0, CalculateConfidence([]string{"a", "b", "c", "d", "e"}, "commercio", "rinnovo"), 1e-9)
}

func TestDetectUpdatesGatesAndSorts(t *testing.T) {
	t.Parallel()

	c := New(DefaultRules(), nil, nil)
	items := []domain.FeedItem{
		{GUID: "low", Title: "Comunicato", Description: "un accordo"},
		{GUID: "mid", Title: "Rinnovo CCNL edilizia", Description: "ipotesi di accordo"},
		{GUID: "high", Title: "Firmato il rinnovo CCNL metalmeccanici", Description: "aumento dei minimi retributivi"},
	}

	detections := c.DetectUpdates(items)
	require.Len(t, detections, 2)
	assert.Equal(t, "high", detections[0].Item.GUID)
	assert.Equal(t, "metalmeccanico", detections[0].Sector)
	assert.Equal(t, "mid", detections[1].Item.GUID)
	for _, d := range detections {
		assert.GreaterOrEqual(t, d.Confidence, MinConfidence)
	}

	_, err := c.Detect(items[0])
	assert.ErrorIs(t, err, domain.ErrLowConfidence)
}

func TestClassifyUpdateRuleBasedWithoutSemantic(t *testing.T) {
	t.Parallel()

	c := New(DefaultRules(), nil, nil)
	got := c.ClassifyUpdate(context.Background(), domain.FeedItem{Title: "Rinnovo CCNL commercio"})

	assert.Equal(t, domain.MethodRuleBased, got.Method)
	assert.Equal(t, "commercio", got.Sector)
	assert.Equal(t, "rinnovo", got.UpdateType)
}

func TestClassifyUpdateHybridFallsBackToSemanticType(t *testing.T) {
	t.Parallel()

	sem := stubSemantic{result: domain.SemanticResult{
		Confidence:      0.9,
		Sector:          "chimico",
		UpdateType:      "aumento_retributivo",
		DetectedChanges: []string{"minimi +3%"},
	}}
	c := New(DefaultRules(), sem, nil)

	got := c.ClassifyUpdate(context.Background(), domain.FeedItem{Title: "CCNL chimico: comunicato"})
	assert.Equal(t, domain.MethodHybrid, got.Method)
	assert.Equal(t, "chimico", got.Sector)
	assert.Equal(t, "aumento_retributivo", got.UpdateType)
	assert.Equal(t, []string{"minimi +3%"}, got.DetectedChanges)
	assert.InDelta(t, (CalculateConfidence([]string{"ccnl"}, "chimico", domain.UnknownUpdateType)+0.9)/2, got.Confidence, 1e-9)

	// Rule-based type wins when it is known.
	got = c.ClassifyUpdate(context.Background(), domain.FeedItem{Title: "Rinnovo CCNL chimico"})
	assert.Equal(t, "rinnovo", got.UpdateType)
}

func TestClassifyUpdateIgnoresFailingSemantic(t *testing.T) {
	t.Parallel()

	c := New(DefaultRules(), stubSemantic{err: errors.New("backend down")}, nil)
	got := c.ClassifyUpdate(context.Background(), domain.FeedItem{Title: "Rinnovo CCNL turismo"})

	assert.Equal(t, domain.MethodRuleBased, got.Method)
	assert.Equal(t, "turismo", got.Sector)
}
