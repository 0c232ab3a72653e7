package document

import (
	"regexp"
	"strconv"
	"strings"

	"CCNLMonitor/internal/domain"
)

var (
	levelExpr    = regexp.MustCompile(`(?i)\b(?:livello|level|categoria)\s+([a-z0-9]{1,3})°?\s*[:=\-]?\s*(?:€|euro|eur)?\s*([0-9][0-9.,]*)`)
	hoursExpr    = regexp.MustCompile(`(?i)\b(\d{1,2}(?:[.,]\d)?)\s*(?:ore\s+(?:settimanali|a\s+settimana|per\s+settimana|medie\s+settimanali)|hours\s+(?:per|a)\s+week|weekly\s+hours)`)
	overtimeExpr = regexp.MustCompile(`(?i)\b(straordinari[oa]?|notturno|festivo|overtime)\b[^\d%\n]{0,40}?(\d{1,3}(?:[.,]\d+)?)\s*%`)
)

var overtimeKeys = map[string]string{
	"straordinario": "standard",
	"straordinari":  "standard",
	"straordinaria": "standard",
	"overtime":      "standard",
	"notturno":      "night",
	"festivo":       "holiday",
}

// ExtractText pulls salary levels, weekly hours and overtime surcharges out of free text.
func ExtractText(text string) domain.ExtractedData {
	var data domain.ExtractedData

	for _, m := range levelExpr.FindAllStringSubmatch(text, -1) {
		amount, ok := ParseAmount(m[2])
		if !ok {
			continue
		}
		if data.SalaryTables == nil {
			data.SalaryTables = map[string]float64{}
		}
		level := LevelKey(m[1])
		if _, dup := data.SalaryTables[level]; !dup {
			data.SalaryTables[level] = amount
		}
	}

	if m := hoursExpr.FindStringSubmatch(text); m != nil {
		if hours, ok := ParseAmount(m[1]); ok {
			data.WorkingHours = &hours
		}
	}

	for _, m := range overtimeExpr.FindAllStringSubmatch(text, -1) {
		pct, ok := ParseAmount(m[2])
		if !ok {
			continue
		}
		key := overtimeKeys[strings.ToLower(m[1])]
		if data.OvertimeRates == nil {
			data.OvertimeRates = map[string]float64{}
		}
		if _, dup := data.OvertimeRates[key]; !dup {
			data.OvertimeRates[key] = 1 + pct/100
		}
	}

	return data
}

// LevelKey normalizes a level label such as "1°" or "A1" into "level_1" or "level_a1".
func LevelKey(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	for _, prefix := range []string{"livello", "level", "categoria"} {
		label = strings.TrimSpace(strings.TrimPrefix(label, prefix))
	}
	label = strings.Trim(label, "°º.:")
	label = strings.Join(strings.Fields(label), "_")
	return "level_" + label
}

// ParseAmount parses numbers written in Italian ("1.500,50") or plain ("1500.50") notation.
func ParseAmount(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(strings.TrimSuffix(s, "€"), ".")
	s = strings.TrimSpace(strings.TrimPrefix(s, "€"))
	if s == "" {
		return 0, false
	}

	switch {
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	case strings.Contains(s, "."):
		if _, frac, _ := strings.Cut(s, "."); len(frac) == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
