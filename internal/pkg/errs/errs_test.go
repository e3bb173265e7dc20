package errs

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestKindSurvivesWrapping(t *testing.T) {
	errLotSold := Kind(ErrConflict, "lot sold")
	wrapped := Wrapf(errLotSold, "reserve lot %d", 42)

	assert.True(t, Is(wrapped, errLotSold))
	assert.True(t, Is(wrapped, ErrConflict))
	assert.False(t, Is(wrapped, ErrNotFound))
	assert.Equal(t, ErrConflict, KindOf(wrapped))
}

func TestSentinelsOfSameKindStayDistinct(t *testing.T) {
	errSold := Kind(ErrConflict, "lot sold")
	errHeld := Kind(ErrConflict, "lot held")

	assert.False(t, Is(errHeld, errSold))
	assert.False(t, Is(Wrap(errSold, "reserve"), errHeld))
	assert.True(t, Is(errHeld, ErrConflict))
}

func TestMarkWithSentinelCarriesKind(t *testing.T) {
	errGateway := Kind(ErrUpstream, "gateway down")
	marked := Mark(Wrap(New("dial tcp: timeout"), "commit"), errGateway)

	assert.True(t, Is(marked, errGateway))
	assert.True(t, Is(marked, ErrUpstream))
	assert.Equal(t, ErrUpstream, KindOf(marked))
	assert.Contains(t, marked.Error(), "dial tcp")
}

func TestKindOfGenericError(t *testing.T) {
	assert.Nil(t, KindOf(New("boom")))
}

func TestMarkNilReturnsMarker(t *testing.T) {
	assert.Equal(t, ErrUpstream, Mark(nil, ErrUpstream))
}

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm duplicated", gorm.ErrDuplicatedKey, true},
		{"pg 23505", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"pg other", &pgconn.PgError{Code: "23503"}, false},
		{"sqlite", New("constraint failed: UNIQUE constraint failed: payment_transactions.token (2067)"), true},
		{"other", New("connection reset"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsUniqueViolation(tc.err))
		})
	}
}
