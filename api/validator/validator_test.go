package validator

import (
	"testing"
)

type loginForm struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
	Role     string
}

func TestValidator_ValidateStruct(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		input   interface{}
		wantErr bool
		fields  []string
	}{
		{
			name: "Valid struct",
			input: loginForm{
				Username: "amal",
				Password: "secret",
			},
			wantErr: false,
		},
		{
			name:    "Missing required fields",
			input:   loginForm{Role: "Operations"},
			wantErr: true,
			fields:  []string{"Username", "Password"},
		},
		{
			name:    "Missing password only",
			input:   loginForm{Username: "amal"},
			wantErr: true,
			fields:  []string{"Password"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errors := v.ValidateStruct(tt.input)

			if tt.wantErr && len(errors) == 0 {
				t.Error("ValidateStruct() expected errors but got none")
				return
			}

			if !tt.wantErr && len(errors) > 0 {
				t.Errorf("ValidateStruct() got unexpected errors: %v", errors)
				return
			}

			if tt.wantErr {
				foundFields := make([]string, 0)
				for _, err := range errors {
					foundFields = append(foundFields, err.Field)
				}
				for _, expectedField := range tt.fields {
					found := false
					for _, foundField := range foundFields {
						if foundField == expectedField {
							found = true
							break
						}
					}
					if !found {
						t.Errorf("Expected validation error for field %s, but got none", expectedField)
					}
				}
			}
		})
	}
}

func TestValidator_Validate(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		value   interface{}
		tag     string
		wantErr bool
	}{
		{
			name:    "Valid resource name",
			value:   "messages",
			tag:     "resource",
			wantErr: false,
		},
		{
			name:    "Resource with uppercase",
			value:   "Messages",
			tag:     "resource",
			wantErr: true,
		},
		{
			name:    "Resource with digits",
			value:   "messages2",
			tag:     "resource",
			wantErr: true,
		},
		{
			name:    "Resource with path characters",
			value:   "../users",
			tag:     "resource",
			wantErr: true,
		},
		{
			name:    "Empty resource",
			value:   "",
			tag:     "resource",
			wantErr: true,
		},
		{
			name:    "Required field present",
			value:   "value",
			tag:     "required",
			wantErr: false,
		},
		{
			name:    "Required field empty",
			value:   "",
			tag:     "required",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errors := v.Validate(tt.value, tt.tag)

			if tt.wantErr && len(errors) == 0 {
				t.Error("Validate() expected errors but got none")
			}

			if !tt.wantErr && len(errors) > 0 {
				t.Errorf("Validate() got unexpected errors: %v", errors)
			}
		})
	}
}

func TestNew(t *testing.T) {
	v := New()
	if v == nil || v.cli == nil {
		t.Error("New() returned invalid validator")
	}
}
