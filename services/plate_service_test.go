package services

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	svc := NewPlateService()

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase with inner space", "co 11204", "CO11204"},
		{"already normalized", "CO11204", "CO11204"},
		{"surrounding whitespace", "  ab12345\t", "AB12345"},
		{"non-breaking space", "ab 12345", "AB12345"},
		{"zero-width space", "ab​12345", "AB12345"},
		{"byte order mark", "\ufeffab12345", "AB12345"},
		{"en-quad and thin space", "ab  12345", "AB12345"},
		{"empty", "", ""},
		{"only whitespace", "   ", ""},
		{"norwegian letters", "æø 123", "ÆØ123"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, svc.Normalize(tc.input))
		})
	}
}

func TestValidate(t *testing.T) {
	svc := NewPlateService()

	cases := []struct {
		name  string
		plate string
		valid bool
		code  string
	}{
		{"standard plate", "CO11204", true, ""},
		{"electric plate", "EK12345", true, ""},
		{"antique plate", "A123", true, ""},
		{"tourist plate", "12345", true, ""},
		{"norwegian letters allowed", "ÆØÅ1234", true, ""},
		{"empty", "", false, PlateErrorEmpty},
		{"too long", "AB123456", false, PlateErrorTooLong},
		{"lowercase rejected", "co11204", false, PlateErrorInvalidChars},
		{"punctuation rejected", "CO-1120", false, PlateErrorInvalidChars},
		{"embedded space rejected", "CO 1120", false, PlateErrorInvalidChars},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := svc.Validate(tc.plate)
			assert.Equal(t, tc.valid, result.Valid)
			assert.Equal(t, tc.code, result.Code)
			if !tc.valid {
				assert.NotEmpty(t, result.Error)
			}
		})
	}
}

func TestValidateTooLongCountsRunes(t *testing.T) {
	svc := NewPlateService()

	// Seven Norwegian letters are seven characters, not fourteen bytes.
	result := svc.Validate("ÆØÅÆØÅÅ")
	assert.True(t, result.Valid)

	result = svc.Validate("ÆØÅÆØÅÅ1")
	assert.Equal(t, PlateErrorTooLong, result.Code)
}

func TestMatchesKnownPattern(t *testing.T) {
	svc := NewPlateService()

	known := []string{"AB12345", "AB1234", "EK12345", "EL12345", "CD12345", "12345", "A123", "AB123"}
	for _, plate := range known {
		assert.True(t, svc.MatchesKnownPattern(plate), plate)
	}

	unknown := []string{"ABC1234", "1234", "ÆØ1234", "AB12"}
	for _, plate := range unknown {
		assert.False(t, svc.MatchesKnownPattern(plate), plate)
	}
}

func TestNormalizeProperties(t *testing.T) {
	svc := NewPlateService()
	properties := gopter.NewProperties(nil)

	properties.Property("normalize is idempotent", prop.ForAll(
		func(raw string) bool {
			once := svc.Normalize(raw)
			return svc.Normalize(once) == once
		},
		gen.AnyString(),
	))

	properties.Property("normalized output has no whitespace", prop.ForAll(
		func(raw string) bool {
			return !strings.ContainsAny(svc.Normalize(raw), " \t\n ​\ufeff")
		},
		gen.AnyString(),
	))

	properties.Property("valid plates survive normalization unchanged", prop.ForAll(
		func(letters, digits string) bool {
			plate := letters + digits
			if !svc.Validate(plate).Valid {
				return true
			}
			return svc.Normalize(plate) == plate
		},
		gen.RegexMatch(`^[A-Z]{2}$`),
		gen.RegexMatch(`^\d{4,5}$`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
