package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
)

var alertEmailTemplate = template.Must(template.New("alert").Parse(`<!DOCTYPE html>
<html>
<head>
<style>
  body { font-family: Arial, sans-serif; background: #0a0e1a; color: #e0e0e0; }
  .container { max-width: 600px; margin: 0 auto; padding: 20px; }
  .header { background: linear-gradient(135deg, #00d4ff, #7b2ff7); padding: 20px; border-radius: 8px 8px 0 0; text-align: center; }
  .header h1 { color: white; margin: 0; font-size: 24px; }
  .body { background: #1a1f35; padding: 30px; border-radius: 0 0 8px 8px; }
  .alert-box { background: #ff4757; border-radius: 8px; padding: 15px; margin: 20px 0; color: white; }
  .row { padding: 10px 0; border-bottom: 1px solid #2a2f45; }
  .label { color: #8892b0; }
  .value { color: #00d4ff; font-weight: bold; float: right; }
  .footer { text-align: center; margin-top: 20px; color: #8892b0; font-size: 12px; }
</style>
</head>
<body>
<div class="container">
  <div class="header"><h1>IoT Alert Triggered</h1></div>
  <div class="body">
    <div class="alert-box">
      <h2>{{.AlertName}}</h2>
      <p>{{.Message}}</p>
    </div>
    <div class="row"><span class="label">Device</span><span class="value">{{.DeviceName}}</span></div>
    <div class="row"><span class="label">Virtual Pin</span><span class="value">{{.Pin}}</span></div>
    <div class="row"><span class="label">Condition</span><span class="value">{{.Pin}} {{.Condition}} {{.Threshold}}</span></div>
    <div class="row"><span class="label">Current Value</span><span class="value" style="color: #ff4757;">{{.CurrentValue}}</span></div>
    <div class="row"><span class="label">Triggered At</span><span class="value">{{.TriggeredAt}}</span></div>
    <p style="margin-top: 20px; color: #8892b0;">Please check your IoT Dashboard for more details.</p>
  </div>
  <div class="footer"><p>IoT Dashboard Platform | Automated Alert System</p></div>
</div>
</body>
</html>
`))

type alertEmailView struct {
	AlertName    string
	Message      string
	DeviceName   string
	Pin          string
	Condition    string
	Threshold    string
	CurrentValue string
	TriggeredAt  string
}

// EmailMessage is a rendered notification ready for a Sender
type EmailMessage struct {
	To      string
	Subject string
	HTML    string
}

// RenderAlertEmail builds the message sent to a rule owner
func RenderAlertEmail(to string, event telemetry_models.AlertTriggeredEvent) (EmailMessage, error) {
	view := alertEmailView{
		AlertName:    event.AlertName,
		Message:      event.Message,
		DeviceName:   event.DeviceName,
		Pin:          event.Pin,
		Condition:    string(event.Condition),
		Threshold:    telemetry_models.FormatNumber(event.Threshold),
		CurrentValue: telemetry_models.FormatNumber(event.CurrentValue),
		TriggeredAt:  event.TriggeredAt.UTC().Format(time.RFC1123),
	}

	var body bytes.Buffer
	if err := alertEmailTemplate.Execute(&body, view); err != nil {
		return EmailMessage{}, fmt.Errorf("render alert email: %w", err)
	}

	return EmailMessage{
		To:      to,
		Subject: fmt.Sprintf("Alert: %s triggered on %s", event.AlertName, event.DeviceName),
		HTML:    body.String(),
	}, nil
}
