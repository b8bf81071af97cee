package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/duynguyendang/factgraph/pkg/model"
	"github.com/duynguyendang/factgraph/pkg/security"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: bad id", ErrInvalidInput), http.StatusBadRequest},
		{ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("load: %w", model.ErrNotFound), http.StatusNotFound},
		{security.ErrAuthenticationFailed, http.StatusUnauthorized},
		{fmt.Errorf("%w: no access", security.ErrAccessDenied), http.StatusForbidden},
		{ErrForbidden, http.StatusForbidden},
		{model.ErrDataIntegrity, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
		{NewAppError(http.StatusTeapot, "teapot", nil), http.StatusTeapot},
		{errors.Join(model.ErrNotFound, security.ErrAccessDenied), http.StatusForbidden},
		{fmt.Errorf("resolve: %w", fmt.Errorf("%w: cycle", model.ErrDataIntegrity)), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got := MapError(tt.err)
		assert.Equal(t, tt.code, got.Code, tt.err.Error())
		assert.ErrorIs(t, got, tt.err)
	}
	assert.Nil(t, MapError(nil))
}
