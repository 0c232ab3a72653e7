package notify

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"CCNLMonitor/internal/domain"
)

// Template renders one notification kind.
type Template struct {
	Kind     domain.NotificationKind
	Title    *template.Template
	Message  *template.Template
	Priority domain.Priority
	Channels []domain.Channel
}

var funcs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "n/d"
		}
		return t.Format("02/01/2006")
	},
	"pct": func(v float64) string { return fmt.Sprintf("%.2f%%", v) },
}

func mustTemplate(kind domain.NotificationKind, priority domain.Priority, channels []domain.Channel, title, message string) Template {
	return Template{
		Kind:     kind,
		Title:    template.Must(template.New(string(kind) + "_title").Funcs(funcs).Parse(title)),
		Message:  template.Must(template.New(string(kind) + "_message").Funcs(funcs).Parse(message)),
		Priority: priority,
		Channels: channels,
	}
}

// DefaultTemplates returns the fixed registry keyed by notification kind.
func DefaultTemplates() map[domain.NotificationKind]Template {
	return map[domain.NotificationKind]Template{
		domain.KindUpdate: mustTemplate(domain.KindUpdate, domain.PriorityMedium,
			[]domain.Channel{domain.ChannelEmail, domain.ChannelInApp, domain.ChannelPush},
			`Aggiornamento {{.AgreementName}}`,
			`È stato rilevato un aggiornamento del {{.AgreementName}}: {{.Summary}}.{{if .URL}} Fonte: {{.URL}}{{end}}`),
		domain.KindSalaryIncrease: mustTemplate(domain.KindSalaryIncrease, domain.PriorityHigh,
			[]domain.Channel{domain.ChannelEmail, domain.ChannelSMS, domain.ChannelPush, domain.ChannelInApp, domain.ChannelWebhook},
			`Nuovi minimi retributivi {{.AgreementName}}`,
			`Dal {{date .EffectiveDate}} i minimi del {{.AgreementName}} aumentano fino al {{pct .MaxIncrease}} su {{.LevelsChanged}} livelli. {{.Summary}}.`),
		domain.KindRenewal: mustTemplate(domain.KindRenewal, domain.PriorityHigh,
			[]domain.Channel{domain.ChannelEmail, domain.ChannelPush, domain.ChannelInApp, domain.ChannelWebhook},
			`Rinnovo {{.AgreementName}}`,
			`Il {{.AgreementName}} è stato rinnovato{{if not .SignedDate.IsZero}} il {{date .SignedDate}}{{end}}, decorrenza {{date .EffectiveDate}}.{{if .URL}} Fonte: {{.URL}}{{end}}`),
		domain.KindExpiryWarning: mustTemplate(domain.KindExpiryWarning, domain.PriorityUrgent,
			[]domain.Channel{domain.ChannelEmail, domain.ChannelInApp},
			`Scadenza {{.AgreementName}}`,
			`Il {{.AgreementName}} scade il {{date .ExpiryDate}} (tra {{.DaysLeft}} giorni). Verificare lo stato delle trattative.`),
	}
}

func (t Template) render(data any) (string, string, error) {
	var title, message bytes.Buffer
	if err := t.Title.Execute(&title, data); err != nil {
		return "", "", fmt.Errorf("render %s title: %w", t.Kind, err)
	}
	if err := t.Message.Execute(&message, data); err != nil {
		return "", "", fmt.Errorf("render %s message: %w", t.Kind, err)
	}
	return title.String(), message.String(), nil
}
