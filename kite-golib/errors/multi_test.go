package errors

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendSkipsNil(t *testing.T) {
	var errs Errors
	require.Nil(t, Append(errs, nil))

	err := New("prepare failed")
	errs = Append(errs, err)
	require.Equal(t, 1, errs.Len())
	require.Equal(t, errs, Append(errs, nil))
}

func TestAppendFlattensLists(t *testing.T) {
	a, b, c := New("a"), New("b"), New("c")
	first := Append(Append(nil, a), b)
	second := Append(nil, c)

	all := Append(first, second)
	require.Equal(t, []error{a, b, c}, all.Slice())
	require.Equal(t, "a\nb\nc", all.Error())

	// the source list is not modified
	require.Equal(t, 2, first.Len())
}

func TestFlatten(t *testing.T) {
	require.Nil(t, Flatten(nil))

	err := Kindf(DataUnavailable, "missing bank")
	require.Equal(t, []error{err}, Flatten(err))

	errs := Append(Append(nil, err), New("other"))
	require.Len(t, Flatten(errs), 2)
}
