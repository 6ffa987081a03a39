package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/prepstream/shipment-relay/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "mysql"), mock
}

func sampleEvent() model.InboundEvent {
	return model.InboundEvent{
		ID:         "01HYZ0000000000000000000EV",
		ShipmentID: "S1",
		EventType:  model.EventTypeStatusChange,
		NewStatus:  "closed",
		MerchantID: "M1",
		Payload:    json.RawMessage(`{}`),
	}
}

func TestEventsInsert(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		dbx, mock := newMockDB(t)
		repo := NewEventsRepository(dbx)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO inbound_events").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.Insert(ctx, nil, sampleEvent())

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate natural key", func(t *testing.T) {
		dbx, mock := newMockDB(t)
		repo := NewEventsRepository(dbx)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO inbound_events").
			WillReturnError(&mysql.MySQLError{Number: 1062})
		mock.ExpectRollback()

		err := repo.Insert(ctx, nil, sampleEvent())

		assert.True(t, errors.Is(err, ErrDuplicateEvent))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other driver error passes through", func(t *testing.T) {
		dbx, mock := newMockDB(t)
		repo := NewEventsRepository(dbx)

		dbErr := &mysql.MySQLError{Number: 1146} // table missing
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO inbound_events").WillReturnError(dbErr)
		mock.ExpectRollback()

		err := repo.Insert(ctx, nil, sampleEvent())

		assert.False(t, errors.Is(err, ErrDuplicateEvent))
		assert.Error(t, err)
	})
}

func TestEventsMarkProcessed(t *testing.T) {
	ctx := context.Background()
	result := json.RawMessage(`{"ok":true}`)

	t.Run("one-shot transition", func(t *testing.T) {
		dbx, mock := newMockDB(t)
		repo := NewEventsRepository(dbx)

		mock.ExpectExec("UPDATE inbound_events").
			WithArgs(true, "", []byte(result), "EV1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.MarkProcessed(ctx, "EV1", true, "", result)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second call loses the compare-and-set", func(t *testing.T) {
		dbx, mock := newMockDB(t)
		repo := NewEventsRepository(dbx)

		mock.ExpectExec("UPDATE inbound_events").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT processed FROM inbound_events").
			WithArgs("EV1").
			WillReturnRows(sqlmock.NewRows([]string{"processed"}).AddRow(true))

		err := repo.MarkProcessed(ctx, "EV1", false, "boom", nil)

		assert.True(t, errors.Is(err, ErrAlreadyProcessed))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown id", func(t *testing.T) {
		dbx, mock := newMockDB(t)
		repo := NewEventsRepository(dbx)

		mock.ExpectExec("UPDATE inbound_events").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT processed FROM inbound_events").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"processed"}))

		err := repo.MarkProcessed(ctx, "missing", true, "", nil)

		assert.True(t, errors.Is(err, ErrEventNotFound))
	})

	t.Run("null result stays NULL", func(t *testing.T) {
		dbx, mock := newMockDB(t)
		repo := NewEventsRepository(dbx)

		mock.ExpectExec("UPDATE inbound_events").
			WithArgs(false, "fatal: bad payload", nil, "EV2").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.MarkProcessed(ctx, "EV2", false, "fatal: bad payload", nil)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEventsHistoryFor(t *testing.T) {
	ctx := context.Background()
	dbx, mock := newMockDB(t)
	repo := NewEventsRepository(dbx)

	cols := []string{
		"id", "shipment_id", "event_type", "new_status", "merchant_id", "related_shipment_id",
		"payload", "processed", "processed_at", "process_success", "process_message", "process_result", "created_at",
	}
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	t3 := t1.Add(2 * time.Minute)

	rows := sqlmock.NewRows(cols).
		AddRow("EV1", "S1", "STATUS_CHANGE", "received", "M1", nil, []byte(`{}`), true, &t2, true, "", []byte(`{}`), t1).
		AddRow("EV2", "S1", "STATUS_CHANGE", "shipped", "M1", nil, []byte(`{}`), false, nil, nil, nil, nil, t2).
		AddRow("EV3", "S2", "INBOUND_RECEIVED", "received", "M1", "S1", []byte(`{}`), false, nil, nil, nil, nil, t3)

	mock.ExpectQuery("SELECT(.|\n)+FROM inbound_events").
		WithArgs("S1", "S1").
		WillReturnRows(rows)

	got, err := repo.HistoryFor(ctx, "S1")

	require.NoError(t, err)
	require.Len(t, got, 3)
	// creation order, cross-referenced row included
	assert.Equal(t, "EV1", got[0].ID)
	assert.Equal(t, "EV2", got[1].ID)
	assert.Equal(t, "EV3", got[2].ID)
	assert.Equal(t, "S1", got[2].RelatedShipmentID.String)
	assert.True(t, got[0].CreatedAt.Before(got[1].CreatedAt))
}

func TestEventsGetByNaturalKey(t *testing.T) {
	ctx := context.Background()
	dbx, mock := newMockDB(t)
	repo := NewEventsRepository(dbx)

	mock.ExpectQuery("SELECT(.|\n)+FROM inbound_events").
		WithArgs("S1", "STATUS_CHANGE", "closed", "M1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByNaturalKey(ctx, model.NaturalKey{
		ShipmentID: "S1", EventType: "STATUS_CHANGE", NewStatus: "closed", MerchantID: "M1",
	})

	assert.True(t, errors.Is(err, ErrEventNotFound))
}
