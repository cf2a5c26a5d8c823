package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-forum-crawler/internal/forum"
)

func TestEmitInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewWithPool(mock, "")
	require.NoError(t, err)

	msg := forum.EmittedMessage{
		ID:             "5d41402abc4b2a76b9719d911017c592",
		ThreadTitle:    "Card đồ họa",
		ThreadDate:     "2024-05-01T09:00:00+0700",
		LatestPoster:   "alpha",
		LatestPostTime: "2024-05-01T10:00:00+0700",
		MessageContent: "hello",
		ThreadURL:      "https://voz.vn/t/card.912345/latest",
	}

	mock.ExpectExec(`INSERT INTO forum_messages .* ON CONFLICT \(id\) DO NOTHING`).
		WithArgs(
			msg.ID,
			msg.ThreadTitle,
			msg.ThreadDate,
			msg.LatestPoster,
			msg.LatestPostTime,
			msg.MessageContent,
			msg.ThreadURL,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, sink.Emit(context.Background(), msg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmitWrapsExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewWithPool(mock, "messages")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO messages").WillReturnError(errors.New("conn reset"))
	err = sink.Emit(context.Background(), forum.EmittedMessage{ID: "x"})
	require.ErrorContains(t, err, "insert message: conn reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaCreatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewWithPool(mock, "forum_messages")
	require.NoError(t, err)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS forum_messages`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, sink.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmitRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewWithPool(mock, "")
	require.NoError(t, err)
	require.Error(t, sink.Emit(context.Background(), forum.EmittedMessage{}))
}

func TestNewWithPoolValidates(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewWithPool(mock, "bad;table")
	require.ErrorContains(t, err, "invalid table name")
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.ErrorContains(t, err, "db.dsn is required")
}
