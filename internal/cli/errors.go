package cli

import (
	"fmt"
	"strconv"
	"strings"
)

type usageError struct {
	msg string
}

func (e usageError) Error() string { return e.msg }

func errUsage(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

func parseID(kind, s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || id <= 0 {
		return 0, errUsage("invalid %s id: %q", kind, s)
	}
	return id, nil
}
