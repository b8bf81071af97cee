package model

import (
	"encoding/json"
	"fmt"
)

// Direction describes how a Fact is bound to an Object, relative to that Object.
type Direction uint8

const (
	DirectionNone Direction = iota
	DirectionBiDirectional
	DirectionFactIsSource
	DirectionFactIsDestination
)

var directionNames = [...]string{
	DirectionNone:              "None",
	DirectionBiDirectional:     "BiDirectional",
	DirectionFactIsSource:      "FactIsSource",
	DirectionFactIsDestination: "FactIsDestination",
}

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return int(d) < len(directionNames)
}

func (d Direction) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
	return directionNames[d]
}

// ParseDirection converts a direction name into a Direction.
func ParseDirection(s string) (Direction, error) {
	for i, name := range directionNames {
		if name == s {
			return Direction(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown direction %q", ErrDataIntegrity, s)
}

// DirectionFromByte decodes the single-byte storage form of a direction.
func DirectionFromByte(b byte) (Direction, error) {
	d := Direction(b)
	if !d.Valid() {
		return 0, fmt.Errorf("%w: unknown direction value %d", ErrDataIntegrity, b)
	}
	return d, nil
}

func (d Direction) MarshalJSON() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: unknown direction value %d", ErrDataIntegrity, uint8(d))
	}
	return json.Marshal(d.String())
}

func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: direction: %v", ErrDataIntegrity, err)
	}
	parsed, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
