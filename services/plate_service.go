package services

import (
	"regexp"
	"strings"
	"unicode"
)

// Norwegian user-facing validation messages. The backend worker is the
// source of truth for deep format checks; these only catch input that could
// never be a plate.
const (
	msgPlateEmpty        = "Registreringsnummer kan ikke være tomt"
	msgPlateInvalidChars = "Registreringsnummer kan kun inneholde norske bokstaver (A-Z, ÆØÅ) og tall (0-9)"
	msgPlateTooLong      = "Registreringsnummer kan ikke være lengre enn 7 tegn"
)

// Validation error codes.
const (
	PlateErrorEmpty        = "EMPTY"
	PlateErrorInvalidChars = "INVALID_CHARS"
	PlateErrorTooLong      = "TOO_LONG"
)

// PlateValidation is the outcome of a local plate check.
type PlateValidation struct {
	Valid bool
	Code  string
	Error string
}

// PlateService normalizes and validates Norwegian registration numbers.
// Pure functions, no I/O.
type PlateService struct {
	knownPatterns []*regexp.Regexp
}

// NewPlateService creates a plate service with the known Norwegian plate
// class patterns used for UX hinting.
func NewPlateService() *PlateService {
	return &PlateService{
		knownPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^[A-Z]{2}\d{4,5}$`), // Standard vehicles
			regexp.MustCompile(`^E[KLVBCDE]\d{5}$`), // Electric vehicles
			regexp.MustCompile(`^CD\d{5}$`),         // Diplomatic vehicles
			regexp.MustCompile(`^\d{5}$`),           // Temporary tourist plates
			regexp.MustCompile(`^[A-Z]\d{3}$`),      // Antique vehicles
			regexp.MustCompile(`^[A-Z]{2}\d{3}$`),   // Provisional plates
		},
	}
}

// Normalize strips all Unicode whitespace (including NBSP, the U+2000–U+200B
// range and BOM) and uppercases. Idempotent; empty input yields "".
func (s *PlateService) Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if isPlateWhitespace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

func isPlateWhitespace(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	// Zero-width space and BOM are not covered by unicode.IsSpace.
	return r == '\u200b' || r == '\ufeff'
}

// Validate runs the permissive local pre-filter over an already normalized
// plate: non-empty, only A-Z/ÆØÅ/0-9, at most 7 characters.
func (s *PlateService) Validate(plate string) PlateValidation {
	if strings.TrimSpace(plate) == "" {
		return PlateValidation{Valid: false, Code: PlateErrorEmpty, Error: msgPlateEmpty}
	}

	for _, r := range plate {
		if !isAllowedPlateRune(r) {
			return PlateValidation{Valid: false, Code: PlateErrorInvalidChars, Error: msgPlateInvalidChars}
		}
	}

	if len([]rune(plate)) > 7 {
		return PlateValidation{Valid: false, Code: PlateErrorTooLong, Error: msgPlateTooLong}
	}

	return PlateValidation{Valid: true}
}

func isAllowedPlateRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == 'Æ' || r == 'Ø' || r == 'Å':
		return true
	}
	return false
}

// MatchesKnownPattern reports whether the plate matches one of the known
// Norwegian plate class formats. Hint only; never used as a hard gate since
// personalized plates fall outside these classes.
func (s *PlateService) MatchesKnownPattern(plate string) bool {
	for _, pattern := range s.knownPatterns {
		if pattern.MatchString(plate) {
			return true
		}
	}
	return false
}
