package student

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/counseling-hub/internal/domain/branch"
)

func TestDecodeRecords_Empty(t *testing.T) {
	for _, in := range []string{"", "  ", "null", "[]"} {
		recs, err := DecodeRecords([]byte(in))
		require.NoError(t, err, in)
		assert.Empty(t, recs, in)
	}
}

func TestDecodeRecords_Malformed(t *testing.T) {
	_, err := DecodeRecords([]byte(`{"email":"a@x.io"}`))
	assert.Error(t, err)

	_, err = DecodeRecords([]byte(`[{"email":`))
	assert.Error(t, err)
}

func TestDecodeRecords_LegacyNormalisation(t *testing.T) {
	in := `[
	  {"email":"Student1@Example.com",
	   "academics":{"physics12":96,"chemistry12":94,"math12":98,"english12":92,"totalMarks12":1,
	                "preference1":"computer-science","preference2":"electrical",
	                "allocatedBranch":"electrical"},
	   "payment":{"amount":5000,"transactionId":"TX1"},
	   "paymentVerified":true},
	  {"email":"student2@example.com","allocatedBranch":"civil",
	   "academics":{"preference1":"mechanical","preference2":"civil","allocatedBranch":"mechanical"}},
	  {"email":"student1@example.com","rank":9},
	  {"email":"  ","rank":1},
	  {"email":"student3@example.com","allocatedBranch":""}
	]`

	recs, err := DecodeRecords([]byte(in))
	require.NoError(t, err)
	require.Len(t, recs, 3)

	first := recs[0]
	assert.Equal(t, Email("student1@example.com"), first.Email)
	assert.Nil(t, first.Rank, "duplicate email later in the list is dropped")
	require.NotNil(t, first.AllocatedBranch)
	assert.Equal(t, branch.Electrical, *first.AllocatedBranch)
	assert.True(t, first.Payment.Verified)
	assert.Equal(t, 380, *first.Academics.TotalMarks12)

	second := recs[1]
	require.NotNil(t, second.AllocatedBranch)
	assert.Equal(t, branch.Civil, *second.AllocatedBranch, "top level wins over nested copy")
	assert.Nil(t, second.Academics.TotalMarks12, "absent total stays absent")

	assert.Nil(t, recs[2].AllocatedBranch)
}

func TestEncodeDecode_DropsNestedAllocation(t *testing.T) {
	recs, err := DecodeRecords([]byte(`[{"email":"a@x.io","academics":{"allocatedBranch":"civil"}}]`))
	require.NoError(t, err)

	data, err := EncodeRecords(recs)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"academics":{"allocatedBranch"`)
	assert.Contains(t, string(data), `"allocatedBranch":"civil"`)

	again, err := DecodeRecords(data)
	require.NoError(t, err)
	if diff := cmp.Diff(recs, again); diff != "" {
		t.Errorf("records changed after encode/decode (-want +got):\n%s", diff)
	}
}

func TestEncodeRecords_Nil(t *testing.T) {
	data, err := EncodeRecords(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}
