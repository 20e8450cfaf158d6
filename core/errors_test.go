package core

import (
	"testing"

	"github.com/pkg/errors"
)

type loginForm struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func TestTranslateValidationErrors(t *testing.T) {
	translator := NewTranslator()
	validate := NewValidator(translator)

	err := TranslateValidationErrors(validate.Struct(loginForm{Password: "pwd"}), translator)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("TranslateValidationErrors() = %T, want *ValidationError", err)
	}
	flds := vErr.FieldMap()
	if got := flds["username"]; got != requiredText {
		t.Errorf("username error = %q, want %q", got, requiredText)
	}
	if _, ok := flds["password"]; ok {
		t.Error("password should be valid")
	}
	if got, want := vErr.Error(), "username: "+requiredText; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	other := errors.New("boom")
	if got := TranslateValidationErrors(other, translator); got != other {
		t.Errorf("TranslateValidationErrors() = %v, want untouched error", got)
	}
}

func TestIsShutdown(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "shutdown", err: NewShutdownError("stop"), want: true},
		{name: "wrapped shutdown", err: errors.Wrap(NewShutdownError("stop"), "serving"), want: true},
		{name: "other", err: errors.New("stop")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsShutdown(tt.err); got != tt.want {
				t.Errorf("IsShutdown() = %v, want %v", got, tt.want)
			}
		})
	}
}
