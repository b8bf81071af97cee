package model

import (
	"encoding/json"
	"fmt"
)

// AccessMode controls who may read a Fact.
type AccessMode uint8

const (
	AccessModePublic AccessMode = iota
	AccessModeRoleBased
	AccessModeExplicit
)

var accessModeNames = [...]string{
	AccessModePublic:    "Public",
	AccessModeRoleBased: "RoleBased",
	AccessModeExplicit:  "Explicit",
}

func (m AccessMode) Valid() bool {
	return int(m) < len(accessModeNames)
}

func (m AccessMode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("AccessMode(%d)", uint8(m))
	}
	return accessModeNames[m]
}

// LessRestrictiveThan reports whether m grants wider visibility than other.
// Public is the least restrictive mode, Explicit the most.
func (m AccessMode) LessRestrictiveThan(other AccessMode) bool {
	return m < other
}

// ParseAccessMode converts an access mode name into an AccessMode.
func ParseAccessMode(s string) (AccessMode, error) {
	for i, name := range accessModeNames {
		if name == s {
			return AccessMode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown access mode %q", ErrDataIntegrity, s)
}

func (m AccessMode) MarshalJSON() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: unknown access mode value %d", ErrDataIntegrity, uint8(m))
	}
	return json.Marshal(m.String())
}

func (m *AccessMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: access mode: %v", ErrDataIntegrity, err)
	}
	parsed, err := ParseAccessMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Flag is a bit set of precomputed Fact markers.
type Flag uint32

const (
	// FlagRetractedHint means at least one retraction has been filed against
	// the Fact somewhere. Whether the current viewer sees it retracted must be
	// resolved separately.
	FlagRetractedHint Flag = 1 << iota
	// FlagBidirectionalBinding is set when the Fact binds its objects in both
	// directions.
	FlagBidirectionalBinding
)

// Has reports whether all bits of f are set.
func (fl Flag) Has(f Flag) bool {
	return fl&f == f
}
