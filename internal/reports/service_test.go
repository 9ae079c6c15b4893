package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"admissions-portal/portal-backend/internal/datasource"
	"admissions-portal/portal-backend/internal/reports/builder"
	"admissions-portal/portal-backend/internal/retry"
)

func TestCreateReport_Success(t *testing.T) {
	f := newServiceFixture()
	userID := uuid.New()
	f.repo.On("CreateReportDefinition", mock.Anything, mock.AnythingOfType("*reports.ReportDefinition")).Return(nil)

	report, err := f.svc.CreateReport(context.Background(), userID, &CreateReportRequest{
		Name:     "Qualified leads",
		Category: ReportCategoryAdmissions,
		Config:   leadsTable(),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Version)
	assert.Equal(t, ReportVisibilityPrivate, report.Visibility)
	assert.Equal(t, userID, *report.CreatedBy)
	f.repo.AssertExpectations(t)
}

func TestCreateReport_InvalidConfig(t *testing.T) {
	f := newServiceFixture()
	cfg := leadsTable()
	cfg.SelectedFields = nil

	_, err := f.svc.CreateReport(context.Background(), uuid.New(), &CreateReportRequest{
		Name:     "Broken",
		Category: ReportCategoryAdmissions,
		Config:   cfg,
	})

	assert.ErrorIs(t, err, builder.ErrInvalidConfig)
	f.repo.AssertNotCalled(t, "CreateReportDefinition", mock.Anything, mock.Anything)
}

func TestUpdateReport_IncrementsVersion(t *testing.T) {
	f := newServiceFixture()
	existing := &ReportDefinition{ID: uuid.New(), Name: "Old", Config: leadsTable(), Version: 3}
	f.repo.On("GetReportDefinition", mock.Anything, existing.ID).Return(existing, nil)
	f.repo.On("UpdateReportDefinition", mock.Anything, existing).Return(nil)

	name := "New"
	report, err := f.svc.UpdateReport(context.Background(), existing.ID, &UpdateReportRequest{Name: &name})

	require.NoError(t, err)
	assert.Equal(t, "New", report.Name)
	assert.Equal(t, 4, report.Version)
}

func TestGetReport_NotFoundIsNotRetried(t *testing.T) {
	f := newServiceFixture()
	id := uuid.New()
	f.repo.On("GetReportDefinition", mock.Anything, id).Return(nil, ErrNotFound).Once()

	_, err := f.svc.GetReport(context.Background(), id)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, f.coord.count())
	f.repo.AssertNumberOfCalls(t, "GetReportDefinition", 1)
}

func TestListReports_DefaultsPaging(t *testing.T) {
	f := newServiceFixture()
	filters := &ReportFilters{PageSize: 500}
	f.repo.On("ListReportDefinitions", mock.Anything, filters).Return([]*ReportDefinition{{Name: "a"}}, 45, nil)

	resp, err := f.svc.ListReports(context.Background(), filters)

	require.NoError(t, err)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 20, resp.PageSize)
	assert.Equal(t, 45, resp.TotalCount)
	assert.True(t, resp.HasMore)
}

func TestRunReport_ShapesTable(t *testing.T) {
	f := newServiceFixture()
	cfg := leadsTable()
	f.source.On("Select", mock.Anything, mock.MatchedBy(func(q datasource.Query) bool {
		return q.Table == "leads" && len(q.Columns) == 3 && q.Where != nil
	})).Return(leadRows(), nil)

	run, err := f.svc.RunReport(context.Background(), &cfg)

	require.NoError(t, err)
	assert.Equal(t, builder.VisualizationTable, run.Result.Type)
	assert.Equal(t, 2, run.Result.RowCount)
	assert.Equal(t, []string{"Ada", "91", "Yes"}, run.Result.Rows[0])
	assert.Equal(t, []string{"Alan", "-", "No"}, run.Result.Rows[1])
}

func TestRunReport_RefreshesOnAuthExpiry(t *testing.T) {
	f := newServiceFixture()
	cfg := leadsTable()
	f.source.On("Select", mock.Anything, mock.Anything).Return(nil, errors.New("JWT expired")).Once()
	f.source.On("Select", mock.Anything, mock.Anything).Return(leadRows(), nil).Once()

	run, err := f.svc.RunReport(context.Background(), &cfg)

	require.NoError(t, err)
	assert.Equal(t, 2, run.Result.RowCount)
	assert.Equal(t, 1, f.coord.count())
	f.source.AssertNumberOfCalls(t, "Select", 2)
}

func TestRunReport_RetriesExhausted(t *testing.T) {
	f := newServiceFixture()
	cfg := leadsTable()
	f.source.On("Select", mock.Anything, mock.Anything).Return(nil, retry.ErrAuthExpired)

	_, err := f.svc.RunReport(context.Background(), &cfg)

	assert.ErrorIs(t, err, retry.ErrRetriesExhausted)
	f.source.AssertNumberOfCalls(t, "Select", 3)
	assert.Equal(t, 2, f.coord.count())
}

func TestRunReport_InvalidConfigSkipsSource(t *testing.T) {
	f := newServiceFixture()
	cfg := leadsTable()
	cfg.Filters = append(cfg.Filters, builder.FilterCondition{Field: "shoe_size", Operator: datasource.OpEquals, Value: 9})

	_, err := f.svc.RunReport(context.Background(), &cfg)

	var cfgErr *builder.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	f.source.AssertNotCalled(t, "Select", mock.Anything, mock.Anything)
}

func TestExportReport_CSVRecordsExecution(t *testing.T) {
	f := newServiceFixture()
	report := &ReportDefinition{ID: uuid.New(), Name: "Qualified Leads", Config: leadsTable(), Version: 2}
	f.repo.On("GetReportDefinition", mock.Anything, report.ID).Return(report, nil)
	f.repo.On("CreateExecution", mock.Anything, mock.AnythingOfType("*reports.ReportExecution")).Return(nil)
	f.repo.On("UpdateExecution", mock.Anything, mock.MatchedBy(func(e *ReportExecution) bool {
		return e.Status == ExecutionStatusCompleted && e.RecordCount != nil && *e.RecordCount == 2
	})).Return(nil)
	f.source.On("Select", mock.Anything, mock.Anything).Return(leadRows(), nil)

	exported, err := f.svc.ExportReport(context.Background(), report.ID, ExportFormatCSV)

	require.NoError(t, err)
	assert.Equal(t, "text/csv", exported.ContentType)
	assert.Regexp(t, `^qualified-leads-\d{8}-\d{6}\.csv$`, exported.FileName)

	records, err := csv.NewReader(bytes.NewReader(exported.Data)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"First Name", "Lead Score", "International"}, records[0])
	assert.Len(t, records, 3)
	f.repo.AssertExpectations(t)
}

func TestExportReport_FailureRecordsExecution(t *testing.T) {
	f := newServiceFixture()
	report := &ReportDefinition{ID: uuid.New(), Name: "Leads", Config: leadsTable()}
	f.repo.On("GetReportDefinition", mock.Anything, report.ID).Return(report, nil)
	f.repo.On("CreateExecution", mock.Anything, mock.Anything).Return(nil)
	f.repo.On("UpdateExecution", mock.Anything, mock.MatchedBy(func(e *ReportExecution) bool {
		return e.Status == ExecutionStatusFailed && e.ErrorMessage != nil
	})).Return(nil)
	f.source.On("Select", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := f.svc.ExportReport(context.Background(), report.ID, ExportFormatPDF)

	assert.Error(t, err)
	f.repo.AssertExpectations(t)
}

func TestExportReport_UnknownFormat(t *testing.T) {
	f := newServiceFixture()

	_, err := f.svc.ExportReport(context.Background(), uuid.New(), ExportFormat("docx"))

	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCreateSchedule_Validation(t *testing.T) {
	hook := "https://hooks.example.edu/reports"
	tests := []struct {
		name string
		req  CreateScheduleRequest
	}{
		{"bad cron", CreateScheduleRequest{CronExpression: "every monday", Format: ExportFormatCSV, DeliveryMethod: DeliveryMethodStorage}},
		{"bad timezone", CreateScheduleRequest{CronExpression: "0 8 * * 1", Timezone: "Mars/Olympus", Format: ExportFormatCSV, DeliveryMethod: DeliveryMethodStorage}},
		{"bad format", CreateScheduleRequest{CronExpression: "0 8 * * 1", Format: "docx", DeliveryMethod: DeliveryMethodStorage}},
		{"email without recipients", CreateScheduleRequest{CronExpression: "0 8 * * 1", Format: ExportFormatPDF, DeliveryMethod: DeliveryMethodEmail}},
		{"webhook without url", CreateScheduleRequest{CronExpression: "0 8 * * 1", Format: ExportFormatPDF, DeliveryMethod: DeliveryMethodWebhook}},
		{"unknown delivery", CreateScheduleRequest{CronExpression: "0 8 * * 1", Format: ExportFormatPDF, DeliveryMethod: "fax", WebhookURL: &hook}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture()
			req := tt.req
			req.ReportDefinitionID = uuid.New()
			req.Name = tt.name

			_, err := f.svc.CreateSchedule(context.Background(), uuid.New(), &req)

			assert.ErrorIs(t, err, ErrInvalidRequest)
			f.repo.AssertNotCalled(t, "CreateSchedule", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateSchedule_Success(t *testing.T) {
	f := newServiceFixture()
	reportID := uuid.New()
	f.repo.On("GetReportDefinition", mock.Anything, reportID).Return(&ReportDefinition{ID: reportID}, nil)
	f.repo.On("CreateSchedule", mock.Anything, mock.AnythingOfType("*reports.ReportSchedule")).Return(nil)

	schedule, err := f.svc.CreateSchedule(context.Background(), uuid.New(), &CreateScheduleRequest{
		ReportDefinitionID: reportID,
		Name:               "Weekly pipeline",
		CronExpression:     "0 8 * * 1",
		Format:             ExportFormatExcel,
		DeliveryMethod:     DeliveryMethodEmail,
		RecipientEmails:    []string{"dean@example.edu"},
	})

	require.NoError(t, err)
	assert.True(t, schedule.IsActive)
	assert.Equal(t, "UTC", schedule.Timezone)
	assert.Equal(t, "CRON_TZ=UTC 0 8 * * 1", ScheduleSpec(schedule))
}

func TestGetDataSource_Unknown(t *testing.T) {
	f := newServiceFixture()

	_, err := f.svc.GetDataSource("alumni")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRender_Formats(t *testing.T) {
	result := &builder.Result{
		Type:    builder.VisualizationTable,
		Columns: []builder.Column{{Field: "name", Label: "Name"}},
		Rows:    [][]string{{"Ada"}},
	}

	for _, format := range []ExportFormat{ExportFormatCSV, ExportFormatExcel, ExportFormatPDF} {
		exported, err := Render("Leads", result, format)
		require.NoError(t, err, format)
		assert.NotEmpty(t, exported.Data)
		assert.Equal(t, format.ContentType(), exported.ContentType)
	}
}
