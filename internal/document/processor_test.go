package document

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CCNLMonitor/internal/domain"
)

var fixedNow = time.Date(2026, time.October, 16, 9, 30, 0, 0, time.UTC)

type textParser struct{}

func (textParser) Name() string           { return "text" }
func (textParser) ContentTypes() []string { return []string{"text/plain"} }
func (textParser) Parse(_ context.Context, body []byte) (domain.ExtractedData, error) {
	return ExtractText(string(body)), nil
}

type failingParser struct{}

func (failingParser) Name() string           { return "broken" }
func (failingParser) ContentTypes() []string { return []string{"application/pdf"} }
func (failingParser) Parse(context.Context, []byte) (domain.ExtractedData, error) {
	return domain.ExtractedData{}, errors.New("corrupt xref table")
}

type recordingArchive struct {
	mu   sync.Mutex
	keys []string
	body string
}

func (a *recordingArchive) Store(_ context.Context, key, _ string, body io.Reader) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key)
	a.body = string(raw)
	return nil
}

func newTestProcessor(archive *recordingArchive) *Processor {
	deps := Deps{
		Registry: NewRegistry(textParser{}, failingParser{}),
		Now:      func() time.Time { return fixedNow },
		Timeout:  2 * time.Second,
	}
	if archive != nil {
		deps.Archive = archive
	}
	return NewProcessor(deps)
}

const tableText = "Tabella minimi: Livello 1: 1.650,00 euro; Livello 2: 1.480,50 euro. Orario di 38 ore settimanali, straordinario maggiorato del 25%."

func TestDownloadAndParseDispatchesByContentType(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(tableText))
	}))
	defer server.Close()

	archive := &recordingArchive{}
	p := newTestProcessor(archive)

	doc, err := p.DownloadAndParse(context.Background(), server.URL+"/tabelle.txt")
	require.NoError(t, err)
	assert.Equal(t, "text", doc.Parser)
	assert.Equal(t, "text/plain", doc.ContentType)
	assert.Equal(t, map[string]float64{"level_1": 1650, "level_2": 1480.5}, doc.Data.SalaryTables)
	require.NotNil(t, doc.Data.WorkingHours)
	assert.InDelta(t, 38, *doc.Data.WorkingHours, 1e-9)
	assert.InDelta(t, 1.25, doc.Data.OvertimeRates["standard"], 1e-9)

	require.Len(t, archive.keys, 1)
	assert.Len(t, archive.keys[0], 64)
	assert.Equal(t, tableText, archive.body)
}

func TestDownloadAndParseSniffsMissingContentType(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte(tableText))
	}))
	defer server.Close()

	doc, err := newTestProcessor(nil).DownloadAndParse(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", doc.ContentType)
	assert.Len(t, doc.Data.SalaryTables, 2)
}

func TestDownloadAndParseSoftFailures(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/broken.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4 garbage"))
		default:
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("not really a png"))
		}
	}))
	defer server.Close()

	p := newTestProcessor(nil)
	ctx := context.Background()

	doc, err := p.DownloadAndParse(ctx, server.URL+"/missing")
	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.True(t, doc.Data.Empty())

	doc, err = p.DownloadAndParse(ctx, server.URL+"/broken.pdf")
	var parseErr *domain.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.True(t, doc.Data.Empty())

	_, err = p.DownloadAndParse(ctx, server.URL+"/image")
	require.ErrorAs(t, err, &parseErr)

	_, err = p.DownloadAndParse(ctx, "")
	require.ErrorAs(t, err, &fetchErr)
}

func TestDownloadAndParseTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	p := NewProcessor(Deps{Registry: NewRegistry(textParser{}), Timeout: 50 * time.Millisecond})

	_, err := p.DownloadAndParse(context.Background(), server.URL)
	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.True(t, fetchErr.Timeout)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	hours := func(v float64) *float64 { return &v }

	tests := []struct {
		name     string
		data     domain.ExtractedData
		valid    bool
		errors   []string
		warnings int
	}{
		{
			name:   "negative salary",
			data:   domain.ExtractedData{SalaryTables: map[string]float64{"level_1": -100}},
			errors: []string{"negative: -100"},
		},
		{
			name:   "salary below minimum",
			data:   domain.ExtractedData{SalaryTables: map[string]float64{"level_1": 320}},
			errors: []string{"below minimum 500"},
		},
		{
			name:     "salary above ceiling only warns",
			data:     domain.ExtractedData{SalaryTables: map[string]float64{"level_q": 62000}},
			valid:    true,
			warnings: 1,
		},
		{
			name:   "hours out of range",
			data:   domain.ExtractedData{WorkingHours: hours(90)},
			errors: []string{"weekly hours 90"},
		},
		{
			name:   "overtime out of range",
			data:   domain.ExtractedData{OvertimeRates: map[string]float64{"night": 0.8}},
			errors: []string{"overtime rate night 0.8"},
		},
		{
			name: "well formed",
			data: domain.ExtractedData{
				SalaryTables:  map[string]float64{"level_1": 1500, "level_2": 1700},
				WorkingHours:  hours(40),
				OvertimeRates: map[string]float64{"standard": 1.25},
			},
			valid: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Validate(tt.data)
			assert.Equal(t, tt.valid, got.Valid)
			require.Len(t, got.Errors, len(tt.errors))
			for i, want := range tt.errors {
				assert.Contains(t, got.Errors[i], want)
			}
			assert.Len(t, got.Warnings, tt.warnings)
			if tt.valid {
				assert.NoError(t, got.Err())
			} else {
				var verr *domain.ValidationError
				assert.ErrorAs(t, got.Err(), &verr)
			}
		})
	}
}

func TestExtractFromSummary(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(nil)

	data := p.ExtractFromSummary("Rinnovo CCNL metalmeccanici", "Aumento del 5% dei minimi e orario a 38 ore")
	assert.Equal(t, map[string]float64{"level_base": 1575}, data.SalaryTables)
	require.NotNil(t, data.WorkingHours)
	assert.InDelta(t, 38, *data.WorkingHours, 1e-9)
	assert.Equal(t, map[string]float64{"standard": DefaultOvertimeRate}, data.OvertimeRates)

	data = p.ExtractFromSummary("Firmato il CCNL commercio", "aumento di 120 euro a regime")
	assert.Equal(t, map[string]float64{"level_base": 1620}, data.SalaryTables)

	data = p.ExtractFromSummary("Comunicato", "nessun dettaglio")
	assert.Equal(t, map[string]float64{"level_base": BaselineSalary}, data.SalaryTables)
	require.NotNil(t, data.WorkingHours)
	assert.InDelta(t, DefaultWeeklyHours, *data.WorkingHours, 1e-9)
	assert.True(t, Validate(data).Valid)
}

func TestPrepareVersionData(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(nil)
	h := 38.0
	data := p.PrepareVersionData(domain.ExtractedData{
		SalaryTables:  map[string]float64{"level_1": 1500},
		WorkingHours:  &h,
		OvertimeRates: map[string]float64{"standard": 1.3},
	}, domain.UpdateEvent{URL: "https://example.org/ccnl.pdf"})

	assert.Equal(t, 202610, data.VersionNumber)
	assert.Equal(t, time.Date(2026, time.October, 16, 0, 0, 0, 0, time.UTC), data.EffectiveDate)
	assert.Equal(t, "https://example.org/ccnl.pdf", data.DocumentURL)

	wages, ok := data.SalaryData.Sub(domain.KeyMinimumWages)
	require.True(t, ok)
	assert.Equal(t, 1500.0, wages["level_1"])

	hours, ok := data.WorkingConditions.Float(domain.KeyWeeklyHours)
	require.True(t, ok)
	assert.InDelta(t, 38, hours, 1e-9)

	back := FiguresFromVersion(data)
	assert.Equal(t, map[string]float64{"level_1": 1500}, back.SalaryTables)
	assert.Equal(t, map[string]float64{"standard": 1.3}, back.OvertimeRates)
}

func TestCrossVerify(t *testing.T) {
	t.Parallel()

	events := []domain.UpdateEvent{
		{Source: "cnel", Confidence: 0.6, Title: "Rinnovo CCNL metalmeccanici firmato"},
		{Source: "lavoro-gov", Confidence: 0.65, Title: "Metalmeccanici: firmato il rinnovo del CCNL"},
	}

	got := CrossVerify(events)
	assert.True(t, got.Verified)
	assert.Equal(t, 2, got.Sources)
	assert.GreaterOrEqual(t, got.Confidence, 0.7)
	assert.InDelta(t, 0.725, got.Confidence, 1e-9)
	assert.Equal(t, []string{"ccnl", "firmato", "metalmeccanici", "rinnovo"}, got.CommonKeywords)

	single := CrossVerify(events[:1])
	assert.False(t, single.Verified)
	assert.InDelta(t, 0.6, single.Confidence, 1e-9)

	same := CrossVerify([]domain.UpdateEvent{
		{Source: "cnel", Confidence: 0.9, Title: "a"},
		{Source: "cnel", Confidence: 0.9, Title: "b"},
	})
	assert.False(t, same.Verified)

	assert.Equal(t, domain.CrossVerification{}, CrossVerify(nil))
}

func TestCrossVerifyCapsCorroborationBonus(t *testing.T) {
	t.Parallel()

	var events []domain.UpdateEvent
	for _, src := range []string{"a", "b", "c", "d", "e"} {
		events = append(events, domain.UpdateEvent{Source: src, Confidence: 0.5, Title: "CCNL"})
	}
	got := CrossVerify(events)
	assert.InDelta(t, 0.7, got.Confidence, 1e-9)
	assert.True(t, got.Verified)
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	cases := map[string]float64{
		"1.500,00":  1500,
		"1500":      1500,
		"1500.50":   1500.5,
		"1.650":     1650,
		"€ 2.100":   2100,
		"1.234.567": 1234567,
		"38,5":      38.5,
	}
	for raw, want := range cases {
		got, ok := ParseAmount(raw)
		assert.True(t, ok, raw)
		assert.InDelta(t, want, got, 1e-9, raw)
	}

	_, ok := ParseAmount("n/d")
	assert.False(t, ok)
}

func TestRegistryResolveIgnoresParameters(t *testing.T) {
	t.Parallel()

	r := NewRegistry(textParser{})
	parser, err := r.Resolve("Text/Plain; charset=ISO-8859-1")
	require.NoError(t, err)
	assert.Equal(t, "text", parser.Name())

	_, err = r.Resolve("application/zip")
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "application/zip"))
}
