package session

import (
	"fmt"
	"regexp"
)

// Session names become directory names under ~/.hmsg/sessions and label the
// daemon's socket, lock and log files, so they are restricted to characters
// that are safe in paths everywhere we run.
var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName rejects names that cannot serve as a session directory name.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("session name %q must be 1-64 lowercase letters, digits, '-' or '_'", name)
	}
	return nil
}
