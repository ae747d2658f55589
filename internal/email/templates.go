package email

import (
	"bytes"
	"fmt"
	"html/template"
)

var layout = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; margin: 0; padding: 0; background-color: #f5f5f5;">
<table role="presentation" style="width: 100%; border: 0;">
<tr><td style="padding: 40px 0; text-align: center;">
<table role="presentation" style="max-width: 480px; margin: 0 auto; background: #ffffff; border-radius: 8px;">
<tr><td style="padding: 32px 40px; text-align: center;">
<h1 style="margin: 0 0 16px; font-size: 24px; color: #1a1a1a;">{{.Title}}</h1>
{{range .Paragraphs}}<p style="margin: 0 0 16px; color: #444; font-size: 15px; line-height: 1.5;">{{.}}</p>
{{end}}<a href="{{.ActionURL}}" style="display: inline-block; padding: 12px 32px; background: #7c3aed; color: #ffffff; text-decoration: none; border-radius: 6px; font-size: 15px;">{{.ActionLabel}}</a>
</td></tr>
</table>
</td></tr>
</table>
</body>
</html>`))

type page struct {
	Title       string
	Paragraphs  []string
	ActionURL   string
	ActionLabel string
}

func (p page) render() (html, text string, err error) {
	var buf bytes.Buffer
	if err := layout.Execute(&buf, p); err != nil {
		return "", "", fmt.Errorf("render %q email: %w", p.Title, err)
	}
	var tb bytes.Buffer
	tb.WriteString(p.Title + "\n\n")
	for _, para := range p.Paragraphs {
		tb.WriteString(para + "\n\n")
	}
	fmt.Fprintf(&tb, "%s: %s\n", p.ActionLabel, p.ActionURL)
	return buf.String(), tb.String(), nil
}

// PlanActivatedData holds template data for the plan activation email.
type PlanActivatedData struct {
	PlanName     string
	Minutes      string
	ExpiresOn    string
	OrderID      string
	DashboardURL string
}

// RenderPlanActivatedEmail renders the activation email.
func RenderPlanActivatedEmail(data PlanActivatedData) (html, text string, err error) {
	return page{
		Title: "Your " + data.PlanName + " plan is active",
		Paragraphs: []string{
			fmt.Sprintf("Thanks for upgrading. You now have %s recording minutes until %s.", data.Minutes, data.ExpiresOn),
			"Order reference: " + data.OrderID,
		},
		ActionURL:   data.DashboardURL,
		ActionLabel: "Open dashboard",
	}.render()
}

// PlanExpiredData holds template data for the plan expiry email.
type PlanExpiredData struct {
	PlanName   string
	UpgradeURL string
}

// RenderPlanExpiredEmail renders the email sent after a downgrade.
func RenderPlanExpiredEmail(data PlanExpiredData) (html, text string, err error) {
	return page{
		Title: "Your " + data.PlanName + " plan has ended",
		Paragraphs: []string{
			"Your account is back on the Free plan with 30 recording minutes.",
			"Your recordings are still there. Renew any time to get your minutes back.",
		},
		ActionURL:   data.UpgradeURL,
		ActionLabel: "Renew plan",
	}.render()
}
