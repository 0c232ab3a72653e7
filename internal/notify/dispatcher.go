package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"CCNLMonitor/internal/domain"
	"CCNLMonitor/internal/ports"
)

// UpdateData feeds the update and salary-increase templates.
type UpdateData struct {
	AgreementID   string
	AgreementName string
	Sector        string
	UpdateType    string
	Summary       string
	URL           string
	EffectiveDate time.Time
	SalaryChanges map[string]domain.WageChange
	ChangesCount  int
	Significance  float64
}

// MaxIncrease returns the largest percentage increase in SalaryChanges.
func (d UpdateData) MaxIncrease() float64 {
	return domain.SalaryChanges{Increased: d.SalaryChanges}.MaxIncreasePercentage()
}

// LevelsChanged returns how many wage levels moved.
func (d UpdateData) LevelsChanged() int {
	return len(d.SalaryChanges)
}

// RenewalData feeds the renewal template.
type RenewalData struct {
	AgreementID   string
	AgreementName string
	Sector        string
	URL           string
	SignedDate    time.Time
	EffectiveDate time.Time
}

// ExpiryData feeds the expiry-warning template.
type ExpiryData struct {
	AgreementID   string
	AgreementName string
	Sector        string
	ExpiryDate    time.Time
	DaysLeft      int
}

// Deps wires the dispatcher collaborators.
type Deps struct {
	Gateways          []ports.ChannelGateway
	Directory         ports.SubscriberDirectory
	SectorKeywords    map[string][]string
	OversightAccounts []string
	ChannelLimits     map[domain.Channel]int
	Templates         map[domain.NotificationKind]Template
	Logger            *slog.Logger
	Now               func() time.Time
}

// Dispatcher renders notifications and fans them out to channel gateways.
type Dispatcher struct {
	gateways       map[domain.Channel]ports.ChannelGateway
	directory      ports.SubscriberDirectory
	sectorKeywords map[string][]string
	oversight      []string
	limits         map[domain.Channel]int
	templates      map[domain.NotificationKind]Template
	logger         *slog.Logger
	now            func() time.Time
}

// NewDispatcher builds a dispatcher. Missing templates fall back to DefaultTemplates.
func NewDispatcher(deps Deps) *Dispatcher {
	d := &Dispatcher{
		gateways:       map[domain.Channel]ports.ChannelGateway{},
		directory:      deps.Directory,
		sectorKeywords: map[string][]string{},
		oversight:      deps.OversightAccounts,
		limits:         deps.ChannelLimits,
		templates:      deps.Templates,
		logger:         deps.Logger,
		now:            deps.Now,
	}
	for _, gw := range deps.Gateways {
		d.gateways[gw.Channel()] = gw
	}
	for sector, keywords := range deps.SectorKeywords {
		for _, kw := range keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				d.sectorKeywords[sector] = append(d.sectorKeywords[sector], kw)
			}
		}
	}
	if d.templates == nil {
		d.templates = DefaultTemplates()
	}
	if d.limits == nil {
		d.limits = map[domain.Channel]int{}
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// GenerateUpdateNotification picks the salary-increase template when wage
// changes are present and the generic update template otherwise.
func (d *Dispatcher) GenerateUpdateNotification(ctx context.Context, data UpdateData) (domain.Notification, error) {
	kind := domain.KindUpdate
	if len(data.SalaryChanges) > 0 {
		kind = domain.KindSalaryIncrease
	}
	if data.Summary == "" {
		data.Summary = "dettagli in aggiornamento"
	}
	meta := map[string]string{
		"agreement_id": data.AgreementID,
		"sector":       data.Sector,
		"update_type":  data.UpdateType,
		"changes":      strconv.Itoa(data.ChangesCount),
		"significance": strconv.FormatFloat(data.Significance, 'f', 2, 64),
	}
	return d.build(ctx, kind, data.AgreementName, data, meta)
}

// GenerateRenewalNotification renders the renewal template.
func (d *Dispatcher) GenerateRenewalNotification(ctx context.Context, data RenewalData) (domain.Notification, error) {
	meta := map[string]string{"agreement_id": data.AgreementID, "sector": data.Sector}
	return d.build(ctx, domain.KindRenewal, data.AgreementName, data, meta)
}

// GenerateExpiryWarning renders the expiry-warning template.
func (d *Dispatcher) GenerateExpiryWarning(ctx context.Context, data ExpiryData) (domain.Notification, error) {
	meta := map[string]string{
		"agreement_id": data.AgreementID,
		"sector":       data.Sector,
		"days_left":    strconv.Itoa(data.DaysLeft),
	}
	return d.build(ctx, domain.KindExpiryWarning, data.AgreementName, data, meta)
}

func (d *Dispatcher) build(ctx context.Context, kind domain.NotificationKind, agreementName string, data any, meta map[string]string) (domain.Notification, error) {
	tpl, ok := d.templates[kind]
	if !ok {
		return domain.Notification{}, fmt.Errorf("template %s is not registered", kind)
	}
	title, message, err := tpl.render(data)
	if err != nil {
		return domain.Notification{}, err
	}
	return domain.Notification{
		TemplateID: kind,
		Title:      title,
		Message:    message,
		Priority:   tpl.Priority,
		Channels:   append([]domain.Channel(nil), tpl.Channels...),
		Recipients: d.ResolveAudience(ctx, agreementName),
		Metadata:   meta,
		CreatedAt:  d.now(),
	}, nil
}

// ResolveAudience matches sector keywords against the agreement name, collects
// the subscribers of every matched sector and appends the oversight accounts.
func (d *Dispatcher) ResolveAudience(ctx context.Context, agreementName string) []string {
	name := strings.ToLower(agreementName)

	sectors := make([]string, 0, len(d.sectorKeywords))
	for sector := range d.sectorKeywords {
		sectors = append(sectors, sector)
	}
	sort.Strings(sectors)

	seen := map[string]struct{}{}
	var audience []string
	add := func(recipients ...string) {
		for _, r := range recipients {
			if _, dup := seen[r]; dup || r == "" {
				continue
			}
			seen[r] = struct{}{}
			audience = append(audience, r)
		}
	}

	for _, sector := range sectors {
		if !containsAny(name, d.sectorKeywords[sector]) || d.directory == nil {
			continue
		}
		subscribers, err := d.directory.SubscribersForSector(ctx, sector)
		if err != nil {
			d.warn("subscriber lookup failed", "sector", sector, "error", err)
			continue
		}
		add(subscribers...)
	}
	add(d.oversight...)
	return audience
}

// SendNotification delivers to every channel concurrently. Channels with a
// batch limit drop the excess recipients, which are counted as failed.
// Failures are reported in the summary and never returned.
func (d *Dispatcher) SendNotification(ctx context.Context, n domain.Notification) domain.DeliverySummary {
	summary := domain.DeliverySummary{Channels: map[domain.Channel]domain.ChannelResult{}}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, channel := range n.Channels {
		wg.Add(1)
		go func(channel domain.Channel) {
			defer wg.Done()
			result := d.deliver(ctx, channel, n)

			mu.Lock()
			defer mu.Unlock()
			summary.Channels[channel] = result
			summary.Sent += result.Sent
			summary.Failed += result.Failed
		}(channel)
	}
	wg.Wait()

	if attempted := summary.Sent + summary.Failed; attempted > 0 {
		summary.SuccessRate = float64(summary.Sent) / float64(attempted)
	}
	d.info("notification dispatched", "template", n.TemplateID, "sent", summary.Sent, "failed", summary.Failed)
	return summary
}

func (d *Dispatcher) deliver(ctx context.Context, channel domain.Channel, n domain.Notification) domain.ChannelResult {
	recipients := n.Recipients
	if len(recipients) == 0 {
		return domain.ChannelResult{}
	}

	gw, ok := d.gateways[channel]
	if !ok {
		return domain.ChannelResult{Failed: len(recipients), Error: fmt.Sprintf("no gateway for channel %s", channel)}
	}

	var result domain.ChannelResult
	if limit := d.limits[channel]; limit > 0 && len(recipients) > limit {
		result.Failed = len(recipients) - limit
		result.Error = fmt.Sprintf("batch limit %d exceeded", limit)
		recipients = recipients[:limit]
	}

	sent, err := gw.Deliver(ctx, n, recipients)
	if sent > len(recipients) {
		sent = len(recipients)
	}
	if sent < 0 {
		sent = 0
	}
	result.Sent = sent
	result.Failed += len(recipients) - sent
	if err != nil {
		d.warn("channel delivery failed", "channel", channel, "error", err)
		result.Error = err.Error()
	}
	return result
}

// Healthy reports whether at least one gateway is configured.
func (d *Dispatcher) Healthy(context.Context) bool {
	return len(d.gateways) > 0
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) info(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Info(msg, args...)
	}
}

func (d *Dispatcher) warn(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, args...)
	}
}
