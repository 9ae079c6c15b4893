package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"admissions-portal/portal-backend/internal/notifications"
	"admissions-portal/portal-backend/internal/reports"
)

type fakeEmailSender struct {
	mu     sync.Mutex
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeEmailSender) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (f *fakePublisher) Publish(_ context.Context, e notifications.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakePublisher) Events() []notifications.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notifications.Event(nil), f.events...)
}

func testWebhookConfig() WebhookConfig {
	return WebhookConfig{Timeout: time.Second, RetryCount: 3, RetryDelay: time.Millisecond}
}

func testDelivery(method reports.DeliveryMethod) *Delivery {
	owner := uuid.New()
	return &Delivery{
		Schedule: &reports.ReportSchedule{
			ID:              uuid.New(),
			Name:            "Weekly pipeline",
			Format:          reports.ExportFormatCSV,
			DeliveryMethod:  method,
			RecipientEmails: []string{"dean@example.edu"},
			CreatedBy:       &owner,
		},
		Report:      &reports.ReportDefinition{ID: uuid.New(), Name: "Pipeline"},
		FileName:    "pipeline-20261019-090000.csv",
		FileKey:     "reports/x/pipeline.csv",
		DownloadURL: "https://files.example.edu/pipeline.csv?sig=abc",
		RecordCount: 42,
		GeneratedAt: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}
}

func TestDeliverByEmail(t *testing.T) {
	sender := &fakeEmailSender{}
	m := NewDeliveryManager(sender, EmailConfig{FromAddress: "reports@example.edu", FromName: "Admissions"}, testWebhookConfig(), nil, zap.NewNop())

	d := testDelivery(reports.DeliveryMethodEmail)
	require.NoError(t, m.Deliver(context.Background(), d))

	require.Len(t, sender.inputs, 1)
	in := sender.inputs[0]
	assert.Equal(t, "Admissions <reports@example.edu>", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"dean@example.edu"}, in.Destination.ToAddresses)
	assert.Equal(t, "Weekly pipeline: Oct 19, 2026", aws.ToString(in.Content.Simple.Subject.Data))
	body := aws.ToString(in.Content.Simple.Body.Text.Data)
	assert.Contains(t, body, "Records: 42")
	assert.Contains(t, body, d.DownloadURL)
}

func TestDeliverByEmail_Errors(t *testing.T) {
	d := testDelivery(reports.DeliveryMethodEmail)

	unconfigured := NewDeliveryManager(nil, EmailConfig{}, testWebhookConfig(), nil, zap.NewNop())
	assert.Error(t, unconfigured.Deliver(context.Background(), d))

	sender := &fakeEmailSender{err: errors.New("throttled")}
	m := NewDeliveryManager(sender, EmailConfig{FromAddress: "reports@example.edu"}, testWebhookConfig(), nil, zap.NewNop())
	err := m.Deliver(context.Background(), d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")

	d.Schedule.RecipientEmails = nil
	assert.Error(t, m.Deliver(context.Background(), d))
}

func TestDeliverByWebhook(t *testing.T) {
	var got WebhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	m := NewDeliveryManager(nil, EmailConfig{}, testWebhookConfig(), nil, zap.NewNop())
	d := testDelivery(reports.DeliveryMethodWebhook)
	d.Schedule.WebhookURL = &server.URL

	require.NoError(t, m.Deliver(context.Background(), d))
	assert.Equal(t, "report.ready", got.Event)
	assert.Equal(t, d.Report.ID.String(), got.ReportID)
	assert.Equal(t, d.DownloadURL, got.DownloadURL)
	assert.Equal(t, 42, got.RecordCount)
}

func TestDeliverByWebhook_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := NewDeliveryManager(nil, EmailConfig{}, testWebhookConfig(), nil, zap.NewNop())
	d := testDelivery(reports.DeliveryMethodWebhook)
	d.Schedule.WebhookURL = &server.URL

	require.NoError(t, m.Deliver(context.Background(), d))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDeliverByWebhook_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	m := NewDeliveryManager(nil, EmailConfig{}, testWebhookConfig(), nil, zap.NewNop())
	d := testDelivery(reports.DeliveryMethodWebhook)
	d.Schedule.WebhookURL = &server.URL

	err := m.Deliver(context.Background(), d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDeliverNotification(t *testing.T) {
	pub := &fakePublisher{}
	m := NewDeliveryManager(nil, EmailConfig{}, testWebhookConfig(), pub, zap.NewNop())
	d := testDelivery(reports.DeliveryMethodNotification)

	require.NoError(t, m.Deliver(context.Background(), d))

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notifications.EventReportReady, events[0].Type)
	assert.Equal(t, d.Schedule.CreatedBy.String(), events[0].Target)
	assert.Equal(t, d.DownloadURL, events[0].Data["download_url"])
}

func TestDeliver_StorageAndUnknown(t *testing.T) {
	m := NewDeliveryManager(nil, EmailConfig{}, testWebhookConfig(), nil, zap.NewNop())

	assert.NoError(t, m.Deliver(context.Background(), testDelivery(reports.DeliveryMethodStorage)))
	assert.Error(t, m.Deliver(context.Background(), testDelivery("carrier-pigeon")))
}
