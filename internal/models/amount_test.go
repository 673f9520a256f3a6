package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mhdcoin-bot/internal/models"
)

func TestParseAmount(t *testing.T) {
	for raw, want := range map[string]int64{
		"0.01": 1,
		"0.5":  50,
		"0.50": 50,
		"2":    200,
		"1.25": 125,
	} {
		got, err := models.ParseAmount(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestParseAmountRejectsExtraPrecision(t *testing.T) {
	_, err := models.ParseAmount("0.001")
	assert.Error(t, err)

	_, err = models.ParseAmount("abc")
	assert.Error(t, err)
}

func TestParseAmountRejectsSign(t *testing.T) {
	// "-0" would otherwise parse to 0 and drop the sign of the fraction.
	_, err := models.ParseAmount("-0.5")
	assert.Error(t, err)

	_, err = models.ParseAmount("-2")
	assert.Error(t, err)

	_, err = models.ParseAmount("+1")
	assert.Error(t, err)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.00", models.FormatAmount(0))
	assert.Equal(t, "0.01", models.FormatAmount(1))
	assert.Equal(t, "0.52", models.FormatAmount(52))
	assert.Equal(t, "12.30", models.FormatAmount(1230))
}
