package ticketbought

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/kafka/messages"
)

type mockDB struct {
	mock.Mock
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	callArgs := append([]any{ctx, sql}, args...)
	res := m.Called(callArgs...)
	return res.Get(0).(pgconn.CommandTag), res.Error(1)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	callArgs := append([]any{ctx, sql}, args...)
	return m.Called(callArgs...).Get(0).(pgx.Row)
}

func (m *mockDB) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockDB) Close() {
	m.Called()
}

func sqlContains(parts ...string) interface{} {
	return mock.MatchedBy(func(q string) bool {
		for _, p := range parts {
			if !strings.Contains(q, p) {
				return false
			}
		}
		return true
	})
}

func testMessage() *messages.TicketBought {
	return &messages.TicketBought{
		Checkpoint:       58542633,
		CheckpointDigest: "8Bk7yZ",
		Epoch:            410,
		TimestampMs:      1700000000123,
		TxDigest:         "5Hq2vT",
		TxIndex:          2,
		EventIndex:       1,
		EventSeq:         1,
		EventType:        "0x2f1c::lottery::TicketBought",
		PackageID:        "0x2f1c",
		Sender:           "0xabc",
		Receiver:         "0xA",
		SpinID:           7,
		Price:            18_446_744_073_709_551_615,
		Amount:           3,
		CoinType:         "0x2::sui::SUI",
	}
}

func newTestRepository(t *testing.T, db *mockDB) Repository {
	t.Helper()
	db.On("Exec", mock.Anything, sqlContains("CREATE TABLE IF NOT EXISTS public.ticket_bought", "PRIMARY KEY (tx_digest, event_seq)")).
		Return(pgconn.NewCommandTag("CREATE TABLE"), nil).
		Once()
	repo, err := NewRepository(t.Context(), db, "public.ticket_bought")
	require.NoError(t, err)
	return repo
}

func TestNewRepository_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewRepository(t.Context(), nil, "ticket_bought")
	require.ErrorContains(t, err, "invalid postgres db")

	for _, name := range []string{"", "ticket bought", "a.b.c", "x;DROP TABLE y"} {
		_, err := NewRepository(t.Context(), &mockDB{}, name)
		require.ErrorContains(t, err, "invalid table name", name)
	}

	db := &mockDB{}
	db.On("Exec", mock.Anything, sqlContains("CREATE TABLE")).
		Return(pgconn.CommandTag{}, errors.New("permission denied")).
		Once()
	_, err = NewRepository(t.Context(), db, "ticket_bought")
	require.ErrorContains(t, err, "failed to initialize ticket_bought table")
}

func TestRepository_WriteTicket(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		tag          string
		wantInserted bool
	}{
		{name: "new row", tag: "INSERT 0 1", wantInserted: true},
		{name: "replay ignored", tag: "INSERT 0 0", wantInserted: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			db := &mockDB{}
			repo := newTestRepository(t, db)
			msg := testMessage()

			db.On("Exec", mock.Anything, sqlContains("INSERT INTO public.ticket_bought", "ON CONFLICT (tx_digest, event_seq) DO NOTHING"),
				"5Hq2vT",
				int64(1),
				int64(58542633),
				"8Bk7yZ",
				int64(410),
				mock.Anything,
				2,
				1,
				msg.EventType,
				msg.PackageID,
				msg.Sender,
				"0x"+strings.Repeat("0", 63)+"a",
				"7",
				"18446744073709551615",
				"3",
				msg.CoinType,
			).Return(pgconn.NewCommandTag(tt.tag), nil).Once()

			inserted, err := repo.WriteTicket(t.Context(), msg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantInserted, inserted)
			db.AssertExpectations(t)
		})
	}
}

func TestRepository_WriteTicket_Errors(t *testing.T) {
	t.Parallel()

	t.Run("nil message", func(t *testing.T) {
		t.Parallel()
		repo := newTestRepository(t, &mockDB{})
		_, err := repo.WriteTicket(t.Context(), nil)
		require.ErrorIs(t, err, ErrNilMessage)
	})

	t.Run("missing digest", func(t *testing.T) {
		t.Parallel()
		repo := newTestRepository(t, &mockDB{})
		msg := testMessage()
		msg.TxDigest = ""
		_, err := repo.WriteTicket(t.Context(), msg)
		require.ErrorIs(t, err, messages.ErrMissingTxDigest)
	})

	t.Run("receiver too long", func(t *testing.T) {
		t.Parallel()
		repo := newTestRepository(t, &mockDB{})
		msg := testMessage()
		msg.Receiver = "0x" + strings.Repeat("f", 66)
		_, err := repo.WriteTicket(t.Context(), msg)
		require.ErrorContains(t, err, "invalid receiver")
	})

	t.Run("exec error", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{}
		repo := newTestRepository(t, db)
		args := []interface{}{mock.Anything, sqlContains("INSERT INTO")}
		for range 16 {
			args = append(args, mock.Anything)
		}
		db.On("Exec", args...).Return(pgconn.CommandTag{}, errors.New("deadlock detected")).Once()

		_, err := repo.WriteTicket(t.Context(), testMessage())
		require.ErrorContains(t, err, "failed to write ticket 5Hq2vT:1")
	})
}
