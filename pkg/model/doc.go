// Package model holds the value types of the Object-Fact model: identifiers,
// binding directions, access modes and flags. Enumerations are closed; values
// outside the known range are reported as ErrDataIntegrity.
package model
