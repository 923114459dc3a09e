package errors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	errs "github.com/jrsteele09/go-recipe-auth/internal/errors"
)

func TestWrapf(t *testing.T) {
	require.NoError(t, errs.Wrapf(nil, "[Func] %s", "ignored"))

	err := errs.Wrapf(errs.ErrNotFound, "[UserRepo.FindByID] id %d", 7)
	require.EqualError(t, err, "[UserRepo.FindByID] id 7: not found")
	require.True(t, errors.Is(err, errs.ErrNotFound))
	require.False(t, errors.Is(err, errs.ErrConflict))
}
