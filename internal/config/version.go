package config

import "fmt"

// CurrentVersion is the config file format this build reads. A file that
// omits version is read as CurrentVersion.
const CurrentVersion = 1

// VersionProblem classifies an unusable config version.
type VersionProblem string

const (
	VersionInvalid VersionProblem = "invalid"
	VersionTooNew  VersionProblem = "too_new"
)

// VersionError reports a config file this build cannot read.
type VersionError struct {
	Found     int
	Supported int
	Problem   VersionProblem
}

func (e *VersionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Problem == VersionTooNew {
		return fmt.Sprintf("config version %d was written for a newer promptlens (this build reads version %d); upgrade promptlens to continue", e.Found, e.Supported)
	}
	return fmt.Sprintf("config version %d is not valid (this build reads version %d)", e.Found, e.Supported)
}

func checkVersion(version int) error {
	switch {
	case version <= 0:
		return &VersionError{Found: version, Supported: CurrentVersion, Problem: VersionInvalid}
	case version > CurrentVersion:
		return &VersionError{Found: version, Supported: CurrentVersion, Problem: VersionTooNew}
	default:
		return nil
	}
}
