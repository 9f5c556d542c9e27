package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/label-copilot/internal/config"
)

func configFor(driver, url string) config.StoreConfig {
	return config.StoreConfig{Driver: driver, DatabaseURL: url, TTLHours: 1}
}

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return &PostgresStore{pool: mock}, mock
}

func TestPostgres_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS lookup_cache").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetLookup(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery("SELECT data FROM lookup_cache").
		WithArgs(SourceWikipedia, "palm oil").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow([]byte("summary")))

	data, err := s.GetLookup(context.Background(), SourceWikipedia, "Palm Oil")
	require.NoError(t, err)
	assert.Equal(t, "summary", string(data))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetLookupNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery("SELECT data FROM lookup_cache").
		WithArgs(SourceWikipedia, "sugar").
		WillReturnError(pgx.ErrNoRows)

	data, err := s.GetLookup(context.Background(), SourceWikipedia, "sugar")
	require.NoError(t, err)
	assert.Nil(t, data)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetLookupError(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery("SELECT data FROM lookup_cache").
		WithArgs(SourceWikipedia, "sugar").
		WillReturnError(errors.New("connection reset"))

	_, err := s.GetLookup(context.Background(), SourceWikipedia, "sugar")
	assert.ErrorContains(t, err, "postgres: get lookup")
}

func TestPostgres_SetLookup(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec("INSERT INTO lookup_cache .+ ON CONFLICT \\(source, term\\)").
		WithArgs(pgxmock.AnyArg(), SourceOpenFoodFacts, "oat milk", []byte("{}"), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SetLookup(context.Background(), SourceOpenFoodFacts, "Oat Milk", []byte("{}"), time.Hour))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteExpired(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec("DELETE FROM lookup_cache WHERE expires_at <= now\\(\\)").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
