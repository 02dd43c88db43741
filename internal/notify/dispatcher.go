package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mediq/pkg/email"
	"mediq/pkg/logging"
)

// Notifier is one escalation channel. Notify must be safe to call
// concurrently with other channels.
type Notifier interface {
	Name() string
	// Action describes what a successful delivery accomplished, in the
	// wording that lands on the persisted alert.
	Action() string
	Notify(ctx context.Context, alert Alert) error
}

// Dispatcher fans an alert out to every configured channel in parallel.
// A failing channel is logged and skipped; the others still deliver.
type Dispatcher struct {
	notifiers []Notifier
	logger    logging.Logger
}

func NewDispatcher(logger logging.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{notifiers: notifiers, logger: logger}
}

// Dispatch delivers the alert and returns the actions that succeeded,
// in registration order.
func (d *Dispatcher) Dispatch(ctx context.Context, alert Alert) []string {
	succeeded := make([]bool, len(d.notifiers))
	var mu sync.Mutex
	var g errgroup.Group

	for i, n := range d.notifiers {
		i, n := i, n
		g.Go(func() error {
			if err := n.Notify(ctx, alert); err != nil {
				d.logger.WithFields(logging.Fields{
					"channel":    n.Name(),
					"patient_id": alert.PatientID,
				}).WithError(err).Error("Alert delivery failed")
				return nil
			}
			mu.Lock()
			succeeded[i] = true
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var actions []string
	for i, n := range d.notifiers {
		if succeeded[i] {
			actions = append(actions, n.Action())
		}
	}
	return actions
}

// EmergencyEmailNotifier mails the receiving emergency department.
type EmergencyEmailNotifier struct {
	sender     *email.Sender
	smtpConfig email.Config
	recipient  string
	logger     logging.Logger
}

func NewEmergencyEmailNotifier(cfg email.Config, recipient string, logger logging.Logger) *EmergencyEmailNotifier {
	return &EmergencyEmailNotifier{
		sender:     email.NewSender(cfg),
		smtpConfig: cfg,
		recipient:  recipient,
		logger:     logger,
	}
}

func (n *EmergencyEmailNotifier) Name() string   { return "er_email" }
func (n *EmergencyEmailNotifier) Action() string { return "Emergency department notified" }

func (n *EmergencyEmailNotifier) IsConfigured() bool {
	return n.smtpConfig.Host != "" && n.smtpConfig.From != "" && n.recipient != ""
}

func (n *EmergencyEmailNotifier) Notify(ctx context.Context, alert Alert) error {
	if !n.IsConfigured() {
		return fmt.Errorf("emergency email notifier not configured")
	}

	subject := fmt.Sprintf("[%s] Incoming patient alert: %s", alert.Risk, alert.Diagnosis)
	body, err := renderAlertEmail(alert)
	if err != nil {
		return fmt.Errorf("render alert email: %w", err)
	}
	if err := n.sender.SendMail(ctx, n.recipient, subject, body); err != nil {
		return err
	}

	n.logger.WithFields(logging.Fields{
		"to":         n.recipient,
		"patient_id": alert.PatientID,
	}).Info("Emergency department email sent")
	return nil
}

func renderAlertEmail(alert Alert) (string, error) {
	funcs := template.FuncMap{
		"pct": func(f float64) string { return fmt.Sprintf("%.0f%%", f*100) },
	}
	tpl, err := template.New("alert").Funcs(funcs).Parse(alertEmailTemplate)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, alert); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const alertEmailTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Patient Alert</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 640px; margin: 0 auto; padding: 24px;">
        <h2 style="color: #c0392b;">Incoming Patient Alert</h2>
        <p>Continuous monitoring flagged patient <strong>{{.PatientID}}</strong>.</p>
        <div style="background-color: #f8f9fa; padding: 16px; border-radius: 6px; margin: 20px 0;">
            <strong>Working diagnosis:</strong> {{.Diagnosis}}<br>
            <strong>Risk level:</strong> {{.Risk}}<br>
            <strong>Confidence:</strong> {{pct .Confidence}}
        </div>
        {{if .Vitals}}
        <h3 style="color: #2c3e50;">Latest Vitals</h3>
        <table style="width: 100%; border-collapse: collapse;">
            {{range $name, $value := .Vitals}}
            <tr>
                <td style="padding: 8px; border-bottom: 1px solid #eee;"><strong>{{$name}}</strong></td>
                <td style="padding: 8px; border-bottom: 1px solid #eee;">{{printf "%.1f" $value}}</td>
            </tr>
            {{end}}
        </table>
        {{end}}
        <p style="color: #6c757d; font-size: 12px;">Generated {{.CreatedAt.Format "January 2, 2006 at 3:04 PM MST"}}</p>
    </div>
</body>
</html>`

// WebhookNotifier POSTs the alert as JSON to an external gateway. Both
// the SMS relay and the mobile push service speak this shape.
type WebhookNotifier struct {
	name   string
	action string
	url    string
	client *http.Client
}

func NewSMSNotifier(gatewayURL string) *WebhookNotifier {
	return &WebhookNotifier{
		name:   "sms",
		action: "SMS sent to emergency contact",
		url:    gatewayURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func NewPushNotifier(gatewayURL string) *WebhookNotifier {
	return &WebhookNotifier{
		name:   "push",
		action: "Push notification delivered",
		url:    gatewayURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *WebhookNotifier) Name() string   { return n.name }
func (n *WebhookNotifier) Action() string { return n.action }

func (n *WebhookNotifier) Notify(ctx context.Context, alert Alert) error {
	if n.url == "" {
		return fmt.Errorf("%s gateway not configured", n.name)
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", n.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver %s alert: %w", n.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s gateway returned status %d", n.name, resp.StatusCode)
	}
	return nil
}

// ChatbotNotifier activates the patient-facing triage chatbot by
// broadcasting an activation event over the websocket hub.
type ChatbotNotifier struct {
	hub *Hub
}

func NewChatbotNotifier(hub *Hub) *ChatbotNotifier {
	return &ChatbotNotifier{hub: hub}
}

func (n *ChatbotNotifier) Name() string   { return "chatbot" }
func (n *ChatbotNotifier) Action() string { return "Emergency chatbot session activated" }

func (n *ChatbotNotifier) Notify(_ context.Context, alert Alert) error {
	if n.hub == nil {
		return fmt.Errorf("chatbot hub not configured")
	}
	n.hub.Broadcast("chatbot_activation", alert)
	return nil
}
