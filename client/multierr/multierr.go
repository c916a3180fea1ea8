package multierr

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/juju/errors"
)

// MultiErr collects errors from a sequence of steps that should all run,
// for example closing every connection of a meeting.
type MultiErr struct {
	errors []error
}

func New() *MultiErr {
	return &MultiErr{}
}

// Add ignores nil errors.
func (m *MultiErr) Add(err error) {
	if err != nil {
		m.errors = append(m.errors, err)
	}
}

// Err returns nil when nothing failed, the single error when one step
// failed, or a combined error listing every error stack.
func (m *MultiErr) Err() error {
	switch len(m.errors) {
	case 0:
		return nil
	case 1:
		return m.errors[0]
	}

	var sb strings.Builder

	for i, err := range m.errors {
		if i > 0 {
			sb.WriteString("\n")
		}

		fmt.Fprintf(&sb, "%d. %s", i+1, errors.ErrorStack(err))
	}

	return errors.Errorf("There were multiple errors:\n%s", sb.String())
}

// Is unwraps juju annotations before comparing with target.
func Is(err, target error) bool {
	return stderrors.Is(errors.Cause(err), target)
}
