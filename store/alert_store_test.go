package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnelsight/api/models"
)

func TestHasRecentAlert_MatchesActiveOnly(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	since := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	pos := 49

	// Resolved and acknowledged alerts must not suppress re-detection, so the
	// dedup lookup has to filter on status.
	mock.ExpectQuery(`SELECT COUNT\(\*\)\s+FROM alerts\s+WHERE funnel_id = \$1\s+AND alert_type = \$2\s+AND created_at >= \$3\s+AND status = 'active'`).
		WithArgs(1, string(models.AlertDropOff), since, pos).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	store := NewAlertStore(db)
	exists, err := store.HasRecentAlert(context.Background(), 1, &pos, models.AlertDropOff, since)
	require.NoError(t, err)

	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasRecentAlert_FunnelLevelUsesNilPosition(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	since := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(\*\)\s+FROM alerts`).
		WithArgs(1, string(models.AlertConversion), since, nil).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	store := NewAlertStore(db)
	exists, err := store.HasRecentAlert(context.Background(), 1, nil, models.AlertConversion, since)
	require.NoError(t, err)

	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
