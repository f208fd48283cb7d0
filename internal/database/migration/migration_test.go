package migration

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const sentinelQuery = "SELECT to_regclass"

func TestEnsureMigrated_SkipsExistingSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(sentinelQuery).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err = EnsureMigrated(context.Background(), db, zaptest.NewLogger(t), 768)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureMigrated_RunsAllSteps(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(sentinelQuery).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	for _, step := range steps(768) {
		mock.ExpectExec(regexp.QuoteMeta(step.SQL)).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	err = EnsureMigrated(context.Background(), db, zaptest.NewLogger(t), 768)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureMigrated_StepFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(sentinelQuery).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("CREATE EXTENSION").
		WillReturnError(errors.New("permission denied"))

	err = EnsureMigrated(context.Background(), db, zaptest.NewLogger(t), 768)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create_extension_uuid_ossp")
}

func TestEnsureMigrated_RejectsBadDimension(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	err = EnsureMigrated(context.Background(), db, nil, 0)
	assert.Error(t, err)
}

func TestSteps_EmbedDimension(t *testing.T) {
	for _, step := range steps(1536) {
		if step.Name == "create_table_document_embeddings" {
			assert.Contains(t, step.SQL, "vector(1536)")
			return
		}
	}
	t.Fatal("embedding table step missing")
}
