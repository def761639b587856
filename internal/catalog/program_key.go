package catalog

import "fmt"

// Canonical program keys. A track carries its program key as an explicit
// catalog-authored column; it is validated here on write, never inferred
// from the track code at evaluation time.
const (
	ProgramDefender  = "defender"
	ProgramOffensive = "offensive"
	ProgramForensics = "forensics"
	ProgramCloudSec  = "cloudsec"
	ProgramGRC       = "grc"
)

var programKeys = map[string]bool{
	ProgramDefender:  true,
	ProgramOffensive: true,
	ProgramForensics: true,
	ProgramCloudSec:  true,
	ProgramGRC:       true,
}

// ValidateProgramKey rejects keys outside the canonical set.
func ValidateProgramKey(key string) error {
	if !programKeys[key] {
		return fmt.Errorf("unknown program key %q", key)
	}
	return nil
}
