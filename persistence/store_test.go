package persistence

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/capsulabs/capsule-pipeline/model"
	"github.com/stretchr/testify/require"
)

func TestGetCapsuleScansDocument(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := model.Capsule{ID: 42, Privacy: model.PrivacyUnlisted}
	raw, err := json.Marshal(c)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT document FROM capsules WHERE id = \\$1").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow(raw))

	store := NewPGStore(db)
	got, err := store.GetCapsule(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, int64(42), got.ID)
	require.Equal(t, model.PrivacyUnlisted, got.Privacy)
}

func TestGetCapsuleNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT document FROM capsules WHERE id = \\$1").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"document"}))

	store := NewPGStore(db)
	_, err = store.GetCapsule(context.Background(), 99)
	require.Error(t, err)
}

func TestSaveCapsuleUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO capsules").WillReturnResult(sqlmock.NewResult(1, 1))

	store := NewPGStore(db)
	err = store.SaveCapsule(context.Background(), &model.Capsule{ID: 42})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
