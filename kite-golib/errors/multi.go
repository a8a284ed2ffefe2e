package errors

import "strings"

// Errors is a non-empty list of errors collected from independent jobs. A nil Errors means
// nothing failed.
type Errors interface {
	error
	// Slice returns a copy of the collected errors
	Slice() []error
	// Len is always > 0
	Len() int
}

type errorList []error

func (l errorList) Slice() []error {
	return append([]error(nil), l...)
}

func (l errorList) Len() int {
	return len(l)
}

func (l errorList) Error() string {
	msgs := make([]string, len(l))
	for i, err := range l {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "\n")
}

// Append adds a possibly nil err to a possibly nil list. Nested lists are flattened.
func Append(errs Errors, err error) Errors {
	if err == nil {
		return errs
	}
	var l errorList
	if errs != nil {
		l = errorList(errs.Slice())
	}
	if nested, ok := err.(Errors); ok {
		return append(l, nested.Slice()...)
	}
	return append(l, err)
}

// Flatten returns the individual errors carried by err: nil for nil, the list for an Errors value,
// and a single-element slice otherwise
func Flatten(err error) []error {
	switch err := err.(type) {
	case nil:
		return nil
	case Errors:
		return err.Slice()
	default:
		return []error{err}
	}
}
