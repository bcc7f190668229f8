package util

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiergate/internal/models"
)

func TestPeriods_UsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	// 20:00 UTC on Oct 31 is already Nov 1 in IST.
	now := time.Date(2026, 10, 31, 20, 0, 0, 0, time.UTC)
	day, month := Periods(now, loc)
	assert.Equal(t, "2026-11-01", day)
	assert.Equal(t, "2026-11", month)

	day, month = Periods(now, nil)
	assert.Equal(t, "2026-10-31", day)
	assert.Equal(t, "2026-10", month)
}

func TestValidPeriod(t *testing.T) {
	assert.True(t, ValidPeriod(models.PeriodDay, "2026-10-17"))
	assert.False(t, ValidPeriod(models.PeriodDay, "2026-10"))
	assert.True(t, ValidPeriod(models.PeriodMonth, "2026-10"))
	assert.False(t, ValidPeriod(models.PeriodMonth, "october"))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, int64(1), EstimateTokens(0))
	assert.Equal(t, int64(1), EstimateTokens(7))
	assert.Equal(t, int64(2), EstimateTokens(8))
	assert.Equal(t, int64(250), EstimateTokens(1000))
}

func TestPromptChars(t *testing.T) {
	msgs := []models.Message{{Role: "system", Content: "ab"}, {Role: "user", Content: "héllo"}}
	assert.Equal(t, 7, PromptChars(msgs))
}

func TestNewUserToken(t *testing.T) {
	a, err := NewUserToken()
	require.NoError(t, err)
	b, err := NewUserToken()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(a, "usr_"))
	assert.Len(t, a, 4+64)
	assert.NotEqual(t, a, b)
	assert.Len(t, HashString(a), 64)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitList(" a, ,b ,"))
	assert.Nil(t, SplitList(""))
}
