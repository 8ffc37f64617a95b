package events

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// MaxPlayerNameLen bounds trimmed display names.
const MaxPlayerNameLen = 24

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode unmarshals a raw data object into dst and schema-validates it.
// Any failure collapses to ErrInvalidPayload; the caller never learns which
// rule tripped, matching the wire contract.
func Decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return ErrInvalidPayload
	}
	if err := validate.Struct(dst); err != nil {
		return ErrInvalidPayload
	}
	return nil
}

// NormalizePlayerName trims and bounds a display name to 1..24 runes.
func NormalizePlayerName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > MaxPlayerNameLen {
		return "", ErrInvalidPayload
	}
	return trimmed, nil
}

// CanonicalRoomCode uppercases a client-supplied room code. Codes that were
// never issued simply miss the registry and surface as room_not_found there.
func CanonicalRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
