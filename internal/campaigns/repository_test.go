package campaigns

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockRepository(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewRepository(gdb), mock
}

func TestRepository_CreateCampaign(t *testing.T) {
	repo, mock := newMockRepository(t)
	campaign := &Campaign{
		ID:        uuid.New(),
		Name:      "Fall MSN",
		Channel:   ChannelEmail,
		Status:    StatusDraft,
		CreatedBy: uuid.New(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	mock.ExpectExec(`INSERT INTO "campaigns"`).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CreateCampaign(context.Background(), campaign))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetCampaignNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "campaigns" WHERE id = \$1 AND "campaigns"."deleted_at" IS NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	_, err := repo.GetCampaign(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetCampaign(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "campaigns"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "channel", "status"}).
			AddRow(id.String(), "Fall MSN", "email", "running"))

	campaign, err := repo.GetCampaign(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, campaign.ID)
	assert.Equal(t, StatusRunning, campaign.Status)
}

func TestRepository_DeleteCampaignMissing(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`UPDATE "campaigns" SET "deleted_at"`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteCampaign(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListCampaigns(t *testing.T) {
	repo, mock := newMockRepository(t)
	status := StatusRunning

	mock.ExpectQuery(`SELECT count\(\*\) FROM "campaigns" WHERE status = \$1`).
		WithArgs("running").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT \* FROM "campaigns" WHERE status = \$1 .* ORDER BY created_at DESC LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status"}).
			AddRow(uuid.New().String(), "A", "running").
			AddRow(uuid.New().String(), "B", "running"))

	campaigns, total, err := repo.ListCampaigns(context.Background(), Filter{Status: &status, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, campaigns, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
