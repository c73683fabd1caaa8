package student

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/counseling-hub/internal/domain/shared"
)

func TestSnapshot_UpsertKeepsInsertionOrder(t *testing.T) {
	s := NewSnapshot(nil, 0)
	s.Upsert("b@x.io", now)
	s.Upsert("a@x.io", now)
	again := s.Upsert("b@x.io", now)
	s.Upsert("c@x.io", now)

	require.Equal(t, 3, s.Len())
	assert.Same(t, s.Records[0], again)
	assert.Equal(t, []Email{"b@x.io", "a@x.io", "c@x.io"},
		[]Email{s.Records[0].Email, s.Records[1].Email, s.Records[2].Email})
}

func TestSnapshot_Get(t *testing.T) {
	s := NewSnapshot([]*Record{NewRecord("a@x.io", now)}, 4)

	r, err := s.Get("a@x.io")
	require.NoError(t, err)
	assert.Equal(t, Email("a@x.io"), r.Email)

	_, err = s.Get("missing@x.io")
	assert.True(t, shared.IsNotFound(err))
}

func TestSnapshot_CloneIsIndependent(t *testing.T) {
	s := NewSnapshot([]*Record{NewRecord("a@x.io", now)}, 2)
	c := s.Clone()
	c.Records[0].SetRank(1)
	c.Upsert("b@x.io", now)

	assert.Nil(t, s.Records[0].Rank)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, int64(2), c.Version)
}

func TestParseConsistency(t *testing.T) {
	c, err := ParseConsistency("")
	require.NoError(t, err)
	assert.Equal(t, ConsistencyLastWriterWins, c)

	c, err = ParseConsistency(" Optimistic ")
	require.NoError(t, err)
	assert.True(t, c.IsOptimistic())

	_, err = ParseConsistency("serializable")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}
