package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prepstream/shipment-relay/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var outboundCols = []string{"id", "kind", "parameters", "consumed", "consumed_at", "delivery_status", "created_at"}

func TestOutboundClaimNextUnconsumed(t *testing.T) {
	ctx := context.Background()

	t.Run("empty queue", func(t *testing.T) {
		dbx, mock := newMockDB(t)
		repo := NewOutboundRepository(dbx)

		mock.ExpectQuery("SELECT(.|\n)+FROM outbound_messages").
			WillReturnError(sql.ErrNoRows)

		m, err := repo.ClaimNextUnconsumed(ctx)

		assert.NoError(t, err)
		assert.Nil(t, m)
	})

	t.Run("winner claims the row", func(t *testing.T) {
		dbx, mock := newMockDB(t)
		repo := NewOutboundRepository(dbx)

		created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		mock.ExpectQuery("SELECT(.|\n)+FROM outbound_messages").
			WillReturnRows(sqlmock.NewRows(outboundCols).
				AddRow("OM1", "BOX_SERVICES_REQUEST", []byte(`{"box_id":7}`), false, nil, "pending", created))
		mock.ExpectExec("UPDATE outbound_messages").
			WithArgs("OM1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		m, err := repo.ClaimNextUnconsumed(ctx)

		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, "OM1", m.ID)
		assert.Equal(t, model.KindBoxServicesRequest, m.Kind)
		assert.True(t, m.Consumed)
		assert.NotNil(t, m.ConsumedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("loser of the race gets none", func(t *testing.T) {
		dbx, mock := newMockDB(t)
		repo := NewOutboundRepository(dbx)

		created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		mock.ExpectQuery("SELECT(.|\n)+FROM outbound_messages").
			WillReturnRows(sqlmock.NewRows(outboundCols).
				AddRow("OM1", "CHAT_NOTIFICATION", []byte(`{}`), false, nil, "pending", created))
		mock.ExpectExec("UPDATE outbound_messages").
			WithArgs("OM1").
			WillReturnResult(sqlmock.NewResult(0, 0)) // another dispatcher won

		m, err := repo.ClaimNextUnconsumed(ctx)

		assert.NoError(t, err)
		assert.Nil(t, m)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOutboundInsert(t *testing.T) {
	ctx := context.Background()
	dbx, mock := newMockDB(t)
	repo := NewOutboundRepository(dbx)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outbound_messages").
		WithArgs("OM1", "SHIPMENT_STATUS_ALERT", []byte(`{"shipment_id":"S1"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Insert(ctx, nil, model.OutboundMessage{
		ID:         "OM1",
		Kind:       model.KindShipmentStatusAlert,
		Parameters: []byte(`{"shipment_id":"S1"}`),
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboundBatchUpdateDeliveryStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("no ids is a no-op", func(t *testing.T) {
		dbx, mock := newMockDB(t)
		repo := NewOutboundRepository(dbx)

		err := repo.BatchUpdateDeliveryStatus(ctx, nil, nil, model.DeliveryDelivered)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("single statement for many ids", func(t *testing.T) {
		dbx, mock := newMockDB(t)
		repo := NewOutboundRepository(dbx)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE outbound_messages SET delivery_status").
			WithArgs("delivered", "OM1", "OM2").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		err := repo.BatchUpdateDeliveryStatus(ctx, nil, []string{"OM1", "OM2"}, model.DeliveryDelivered)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
