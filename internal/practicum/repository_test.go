package practicum

import (
	"context"
	"testing"

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

func TestCreatePlacementWithinCapacity(t *testing.T) {
	repo, mock := newMockRepository(t)
	siteID := uuid.New()
	placement := &Placement{ID: uuid.New(), SiteID: siteID, StudentID: uuid.New(), Term: "2027SP", Status: PlacementPending}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "practicum_sites" WHERE id = \$1 .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "capacity", "active"}).
			AddRow(siteID.String(), "Riverside", 2, true))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "practicum_placements" WHERE site_id = \$1 AND term = \$2 AND status IN \(\$3,\$4,\$5\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(`INSERT INTO "practicum_placements"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreatePlacementWithinCapacity(context.Background(), placement))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePlacementWithinCapacity_Full(t *testing.T) {
	repo, mock := newMockRepository(t)
	siteID := uuid.New()
	placement := &Placement{ID: uuid.New(), SiteID: siteID, StudentID: uuid.New(), Term: "2027SP", Status: PlacementPending}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "practicum_sites"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "capacity"}).AddRow(siteID.String(), 2))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "practicum_placements"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	err := repo.CreatePlacementWithinCapacity(context.Background(), placement)
	assert.ErrorIs(t, err, ErrSiteFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePlacementWithinCapacity_UnknownSite(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "practicum_sites"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := repo.CreatePlacementWithinCapacity(context.Background(), &Placement{SiteID: uuid.New(), Term: "2027SP"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
