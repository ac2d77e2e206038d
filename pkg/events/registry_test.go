package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/bcs"
)

func TestNewRegistry(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		typeNames []string
		wantErr   error
		wantNames []string
	}{
		{name: "ticket bought", typeNames: []string{TicketBoughtType}, wantNames: []string{TicketBoughtType}},
		{name: "duplicates collapse", typeNames: []string{TicketBoughtType, TicketBoughtType}, wantNames: []string{TicketBoughtType}},
		{name: "unknown type", typeNames: []string{TicketBoughtType, "SpinResult"}, wantErr: ErrUnknownEventType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reg, err := NewRegistry(tt.typeNames...)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Nil(t, reg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNames, reg.TypeNames())
		})
	}

	_, err := NewRegistry()
	require.ErrorContains(t, err, "at least one type name")
}

func TestRegistry_Matches(t *testing.T) {
	t.Parallel()
	reg, err := NewRegistry(TicketBoughtType)
	require.NoError(t, err)

	assert.True(t, reg.Matches("TicketBought"))
	assert.False(t, reg.Matches("ticketbought"), "match is case sensitive")
	assert.False(t, reg.Matches("TicketSold"))
	assert.False(t, reg.Matches(""))
}

func TestRegistry_Decode(t *testing.T) {
	t.Parallel()
	reg, err := NewRegistry(TicketBoughtType)
	require.NoError(t, err)

	rec, err := reg.Decode(TicketBoughtType, ticketBoughtFixture())
	require.NoError(t, err)
	tb, ok := rec.(TicketBought)
	require.True(t, ok)
	assert.Equal(t, uint64(7), tb.SpinID)
	assert.Equal(t, "SUI", tb.CoinType)

	rec, err = reg.Decode(TicketBoughtType, ticketBoughtFixture()[:20])
	require.ErrorIs(t, err, bcs.ErrUnexpectedEOF)
	assert.Nil(t, rec, "failed decode must not return a typed nil record")

	rec, err = reg.Decode("SpinResult", nil)
	require.ErrorIs(t, err, ErrUnknownEventType)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "SpinResult", decodeErr.TypeName)
	assert.Nil(t, rec)
}

func TestKnownTypes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{TicketBoughtType}, KnownTypes())
}
