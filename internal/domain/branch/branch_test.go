package branch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/counseling-hub/internal/domain/shared"
)

func TestDefaultCapacity(t *testing.T) {
	c := DefaultCapacity()
	require.NoError(t, c.Validate())

	assert.Equal(t, 120, c.Seats(ComputerScience))
	assert.Equal(t, 100, c.Seats(Mechanical))
	assert.Equal(t, 80, c.Seats(Electrical))
	assert.Equal(t, 90, c.Seats(Civil))
	assert.Equal(t, 70, c.Seats(Electronics))
	assert.Equal(t, 60, c.Seats(Chemical))
	assert.Equal(t, 0, c.Seats(Biotechnology))
	assert.Equal(t, 520, c.Total())
	assert.Len(t, c, 6)
}

func TestCode_Name(t *testing.T) {
	assert.Equal(t, "Computer Science Engineering", ComputerScience.Name())
	assert.Equal(t, "Electronics & Communication", Electronics.Name())
	assert.Equal(t, "Biotechnology", Biotechnology.Name())
	assert.Equal(t, "aerospace", Code("aerospace").Name())
}

func TestParse(t *testing.T) {
	c, err := Parse("  Computer-Science ")
	require.NoError(t, err)
	assert.Equal(t, ComputerScience, c)

	_, err = Parse("aerospace")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = Parse("")
	assert.Error(t, err)
}

func TestParseCapacity(t *testing.T) {
	c, err := ParseCapacity("computer-science:1, civil : 2,")
	require.NoError(t, err)
	assert.Equal(t, Capacity{ComputerScience: 1, Civil: 2}, c)

	_, err = ParseCapacity("civil=2")
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)

	_, err = ParseCapacity("civil:two")
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)

	_, err = ParseCapacity("civil:-1")
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)

	_, err = ParseCapacity("")
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)
}

func TestSeatLedger(t *testing.T) {
	l := NewSeatLedger(Capacity{ComputerScience: 1, Civil: 0})

	assert.True(t, l.TryTake(ComputerScience))
	assert.False(t, l.TryTake(ComputerScience))
	assert.False(t, l.TryTake(Civil))
	assert.False(t, l.TryTake(Biotechnology))
	assert.Equal(t, 1, l.Used(ComputerScience))
	assert.Equal(t, 0, l.Free(ComputerScience))

	// ручное назначение обходит лимит
	l.Charge(Civil)
	assert.Equal(t, 1, l.Used(Civil))
	assert.Equal(t, 0, l.Free(Civil))

	sum := l.Summary()
	require.Len(t, sum, 2)
	assert.Equal(t, SeatSummary{Code: ComputerScience, Name: ComputerScience.Name(), Total: 1, Allocated: 1, Free: 0}, sum[0])
	assert.Equal(t, Civil, sum[1].Code)
	assert.Equal(t, 1, sum[1].Allocated)
}

func TestSeatLedger_SummaryIncludesOverriddenBranchWithoutSeats(t *testing.T) {
	l := NewSeatLedger(Capacity{ComputerScience: 2})
	l.Charge(Biotechnology)

	sum := l.Summary()
	require.Len(t, sum, 2)
	assert.Equal(t, Biotechnology, sum[1].Code)
	assert.Equal(t, 0, sum[1].Total)
	assert.Equal(t, 1, sum[1].Allocated)
}
