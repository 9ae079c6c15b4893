package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"admissions-portal/portal-backend/internal/notifications"
	"admissions-portal/portal-backend/internal/reports"
)

// EmailSender is the part of the SES v2 client delivery uses
type EmailSender interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailConfig configuration for email delivery
type EmailConfig struct {
	FromAddress string `json:"from_address"`
	FromName    string `json:"from_name"`
}

// WebhookConfig configuration for webhook delivery
type WebhookConfig struct {
	Timeout    time.Duration `json:"timeout"`
	RetryCount int           `json:"retry_count"`
	RetryDelay time.Duration `json:"retry_delay"`
}

// DefaultWebhookConfig returns default webhook options
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Timeout:    30 * time.Second,
		RetryCount: 3,
		RetryDelay: time.Second,
	}
}

// Delivery describes one generated report file to hand to its recipients
type Delivery struct {
	Schedule    *reports.ReportSchedule
	Report      *reports.ReportDefinition
	FileName    string
	FileKey     string
	DownloadURL string
	RecordCount int
	GeneratedAt time.Time
}

// WebhookPayload is the JSON body posted to webhook recipients
type WebhookPayload struct {
	Event       string    `json:"event"`
	ReportID    string    `json:"report_id"`
	ReportName  string    `json:"report_name"`
	ScheduleID  string    `json:"schedule_id"`
	Format      string    `json:"format"`
	FileName    string    `json:"file_name"`
	DownloadURL string    `json:"download_url,omitempty"`
	RecordCount int       `json:"record_count"`
	GeneratedAt time.Time `json:"generated_at"`
}

// DeliveryManager handles report delivery
type DeliveryManager struct {
	email         EmailSender
	emailConfig   EmailConfig
	webhookConfig WebhookConfig
	httpClient    *http.Client
	publisher     notifications.Publisher
	logger        *zap.Logger
}

// NewDeliveryManager creates a delivery manager. email and publisher may be nil when
// those delivery methods are not configured.
func NewDeliveryManager(
	email EmailSender,
	emailConfig EmailConfig,
	webhookConfig WebhookConfig,
	publisher notifications.Publisher,
	logger *zap.Logger,
) *DeliveryManager {
	return &DeliveryManager{
		email:         email,
		emailConfig:   emailConfig,
		webhookConfig: webhookConfig,
		httpClient:    &http.Client{Timeout: webhookConfig.Timeout},
		publisher:     publisher,
		logger:        logger,
	}
}

// Deliver sends d through its schedule's delivery method
func (m *DeliveryManager) Deliver(ctx context.Context, d *Delivery) error {
	switch d.Schedule.DeliveryMethod {
	case reports.DeliveryMethodEmail:
		return m.DeliverByEmail(ctx, d)
	case reports.DeliveryMethodWebhook:
		return m.DeliverByWebhook(ctx, d)
	case reports.DeliveryMethodNotification:
		return m.DeliverNotification(ctx, d)
	case reports.DeliveryMethodStorage:
		// The upload is the delivery
		m.logger.Info("Report stored",
			zap.String("schedule_id", d.Schedule.ID.String()),
			zap.String("file_key", d.FileKey))
		return nil
	default:
		return fmt.Errorf("unsupported delivery method: %s", d.Schedule.DeliveryMethod)
	}
}

// DeliverByEmail emails recipients a download link through SES
func (m *DeliveryManager) DeliverByEmail(ctx context.Context, d *Delivery) error {
	if m.email == nil {
		return fmt.Errorf("email delivery is not configured")
	}
	if len(d.Schedule.RecipientEmails) == 0 {
		return fmt.Errorf("no recipients specified")
	}

	from := m.emailConfig.FromAddress
	if m.emailConfig.FromName != "" {
		from = fmt.Sprintf("%s <%s>", m.emailConfig.FromName, m.emailConfig.FromAddress)
	}
	subject := fmt.Sprintf("%s: %s", d.Schedule.Name, d.GeneratedAt.Format("Jan 2, 2006"))

	out, err := m.email.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &sestypes.Destination{ToAddresses: d.Schedule.RecipientEmails},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(emailBody(d)), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		m.logger.Error("Failed to send email",
			zap.Error(err),
			zap.Strings("to", d.Schedule.RecipientEmails))
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Info("Email sent successfully",
		zap.Strings("to", d.Schedule.RecipientEmails),
		zap.String("message_id", aws.ToString(out.MessageId)))
	return nil
}

func emailBody(d *Delivery) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your scheduled report %q is ready.\n\n", d.Report.Name)
	fmt.Fprintf(&b, "Records: %d\n", d.RecordCount)
	fmt.Fprintf(&b, "Generated: %s\n", d.GeneratedAt.Format(time.RFC1123))
	if d.DownloadURL != "" {
		fmt.Fprintf(&b, "\nDownload %s:\n%s\n", d.FileName, d.DownloadURL)
	}
	return b.String()
}

// DeliverByWebhook posts a JSON summary with the download link, retrying
// network errors and 5xx responses
func (m *DeliveryManager) DeliverByWebhook(ctx context.Context, d *Delivery) error {
	if d.Schedule.WebhookURL == nil || *d.Schedule.WebhookURL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	url := *d.Schedule.WebhookURL

	payload, err := json.Marshal(WebhookPayload{
		Event:       string(notifications.EventReportReady),
		ReportID:    d.Report.ID.String(),
		ReportName:  d.Report.Name,
		ScheduleID:  d.Schedule.ID.String(),
		Format:      string(d.Schedule.Format),
		FileName:    d.FileName,
		DownloadURL: d.DownloadURL,
		RecordCount: d.RecordCount,
		GeneratedAt: d.GeneratedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	retries := max(m.webhookConfig.RetryCount, 1)
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(m.webhookConfig.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		retryable, err := m.postWebhook(ctx, url, payload)
		if err == nil {
			m.logger.Info("Webhook delivered successfully", zap.String("url", url))
			return nil
		}
		lastErr = err
		m.logger.Warn("Webhook delivery attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if !retryable {
			break
		}
	}

	return fmt.Errorf("webhook delivery failed: %w", lastErr)
}

func (m *DeliveryManager) postWebhook(ctx context.Context, url string, payload []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Portal-Event", string(notifications.EventReportReady))

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return true, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
}

// DeliverNotification pushes a dashboard notification to the schedule's owner
func (m *DeliveryManager) DeliverNotification(ctx context.Context, d *Delivery) error {
	if m.publisher == nil {
		return fmt.Errorf("notification delivery is not configured")
	}

	event := notifications.Event{
		Type:    notifications.EventReportReady,
		Title:   d.Report.Name + " is ready",
		Message: fmt.Sprintf("%d records", d.RecordCount),
		Data: map[string]any{
			"report_id":    d.Report.ID.String(),
			"schedule_id":  d.Schedule.ID.String(),
			"file_name":    d.FileName,
			"download_url": d.DownloadURL,
		},
	}
	if d.Schedule.CreatedBy != nil {
		event.Target = d.Schedule.CreatedBy.String()
	}
	return m.publisher.Publish(ctx, event)
}

// NotifyFailure tells the schedule's owner a run failed. Best effort.
func (m *DeliveryManager) NotifyFailure(ctx context.Context, schedule *reports.ReportSchedule, runErr error) {
	if m.publisher == nil {
		return
	}
	event := notifications.Event{
		Type:    notifications.EventReportFailed,
		Title:   schedule.Name + " failed",
		Message: runErr.Error(),
		Data:    map[string]any{"schedule_id": schedule.ID.String()},
	}
	if schedule.CreatedBy != nil {
		event.Target = schedule.CreatedBy.String()
	}
	if err := m.publisher.Publish(ctx, event); err != nil {
		m.logger.Warn("Failed to publish failure notification", zap.Error(err))
	}
}
