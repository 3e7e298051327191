package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longbox-labs/pricefeed-cli/internal/model"
)

func newMockPostgres(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

func TestPostgres_RecordRun(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectExec("INSERT INTO collection_runs").
		WithArgs(pgxmock.AnyArg(), "hulk 181", "ebay", "complete", 12, int64(840), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := st.RecordRun(context.Background(), model.CollectionRun{
		Query:       "hulk 181",
		Marketplace: model.MarketplaceEBay,
		Status:      model.RunStatusComplete,
		ResultCount: 12,
		DurationMs:  840,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListRuns_Filtered(t *testing.T) {
	st, mock := newMockPostgres(t)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{"id", "query", "marketplace", "status", "result_count", "duration_ms", "created_at"}).
		AddRow("run-1", "hulk 181", model.MarketplaceEBay, model.RunStatusFailed, 0, int64(120), now)

	mock.ExpectQuery("SELECT id, query, marketplace, status").
		WithArgs("failed", 50).
		WillReturnRows(rows)

	runs, err := st.ListRuns(context.Background(), RunFilter{Status: model.RunStatusFailed, Limit: 50})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetCachedSearch_Miss(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT result FROM search_cache").
		WithArgs("key-1").
		WillReturnRows(pgxmock.NewRows([]string{"result"}))

	got, err := st.GetCachedSearch(context.Background(), "key-1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetCachedSearch_Hit(t *testing.T) {
	st, mock := newMockPostgres(t)

	doc := []byte(`{"query":"hulk 181","total_listings":2}`)
	mock.ExpectQuery("SELECT result FROM search_cache").
		WithArgs("key-1").
		WillReturnRows(pgxmock.NewRows([]string{"result"}).AddRow(doc))

	got, err := st.GetCachedSearch(context.Background(), "key-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.TotalListings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DLQ_CountAndRemove(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM dead_letter_queue").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))

	count, err := st.CountDLQ(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	mock.ExpectExec("DELETE FROM dead_letter_queue").
		WithArgs("dlq-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err = st.RemoveDLQ(context.Background(), "dlq-1")
	assert.Error(t, err, "zero rows affected means unknown id")
	assert.NoError(t, mock.ExpectationsWereMet())
}
