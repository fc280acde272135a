// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package httpapi

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"

	"github.com/userauth/accountd/internal/auth"
)

// RegisterRequest is the body of POST /users/register.
type RegisterRequest struct {
	Username string `json:"username" jsonschema:"minLength=1,description=Display name"`
	Email    string `json:"email" jsonschema:"format=email"`
	Password string `json:"password" jsonschema:"minLength=1"`
}

// LoginRequest is the body of POST /users/login.
type LoginRequest struct {
	Email    string `json:"email" jsonschema:"format=email"`
	Password string `json:"password" jsonschema:"minLength=1"`
}

// SchemaBaseURL prefixes the $id of every generated request schema.
const SchemaBaseURL = "https://github.com/userauth/accountd/schemas/"

// fieldMessages are the client-facing messages for an invalid field.
var fieldMessages = map[string]string{
	"username": "Username is required.",
	"email":    "Email is required.",
	"password": "Password is required.",
}

type requestSchema struct {
	file        string
	title       string
	description string
	model       any
	// fields lists the validated properties in message order.
	fields []string
}

var requestSchemas = []requestSchema{
	{
		file:        "register.schema.json",
		title:       "Register request",
		description: "Body of POST /users/register",
		model:       &RegisterRequest{},
		fields:      []string{"username", "email", "password"},
	},
	{
		file:        "login.schema.json",
		title:       "Login request",
		description: "Body of POST /users/login",
		model:       &LoginRequest{},
		fields:      []string{"email", "password"},
	},
}

func (rs requestSchema) generate() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	schema := r.Reflect(rs.model)
	schema.ID = jsonschema.ID(SchemaBaseURL + rs.file)
	schema.Title = rs.title
	schema.Description = rs.description

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_MARSHAL_FAILED").With("schema", rs.file).Wrap(err)
	}
	return data, nil
}

// GenerateSchemas returns the request JSON Schemas keyed by file name.
func GenerateSchemas() (map[string][]byte, error) {
	out := make(map[string][]byte, len(requestSchemas))
	for _, rs := range requestSchemas {
		data, err := rs.generate()
		if err != nil {
			return nil, err
		}
		out[rs.file] = data
	}
	return out, nil
}

// bodyValidator checks a raw request body against one request schema.
type bodyValidator struct {
	fields []string
	schema *jschema.Schema
}

var (
	validatorsOnce sync.Once
	validators     map[string]*bodyValidator
	validatorsErr  error
)

// validatorFor returns the compiled validator for a schema file name.
func validatorFor(file string) (*bodyValidator, error) {
	validatorsOnce.Do(func() {
		validators, validatorsErr = compileValidators()
	})
	if validatorsErr != nil {
		return nil, validatorsErr
	}
	v, ok := validators[file]
	if !ok {
		return nil, oops.Code("SCHEMA_UNKNOWN").With("schema", file).Errorf("no schema named %q", file)
	}
	return v, nil
}

func compileValidators() (map[string]*bodyValidator, error) {
	c := jschema.NewCompiler()
	c.AssertFormat()

	for _, rs := range requestSchemas {
		data, err := rs.generate()
		if err != nil {
			return nil, err
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, oops.Code("SCHEMA_PARSE_FAILED").With("schema", rs.file).Wrap(err)
		}
		if err := c.AddResource(SchemaBaseURL+rs.file, doc); err != nil {
			return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", rs.file).Wrap(err)
		}
	}

	out := make(map[string]*bodyValidator, len(requestSchemas))
	for _, rs := range requestSchemas {
		sch, err := c.Compile(SchemaBaseURL + rs.file)
		if err != nil {
			return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", rs.file).Wrap(err)
		}
		out[rs.file] = &bodyValidator{fields: rs.fields, schema: sch}
	}
	return out, nil
}

// Decode validates body and unmarshals it into dst. Any failure is an
// AUTH_VALIDATION_FAILED error whose "fields" context lists the invalid
// properties in message order. A body that is not a JSON object fails
// every field.
func (v *bodyValidator) Decode(body []byte, dst any) error {
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return v.invalid(v.fields, err)
	}

	if err := v.schema.Validate(doc); err != nil {
		bad := map[string]bool{}
		collectInvalidFields(err, bad)
		var fields []string
		for _, f := range v.fields {
			if bad[f] || bad[""] {
				fields = append(fields, f)
			}
		}
		if len(fields) == 0 {
			fields = v.fields
		}
		return v.invalid(fields, err)
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return v.invalid(v.fields, err)
	}
	return nil
}

func (v *bodyValidator) invalid(fields []string, cause error) error {
	return oops.Code(auth.CodeValidationFailed).
		With("fields", fields).
		Errorf("invalid request body: %v", cause)
}

// collectInvalidFields records the top-level property of every leaf
// validation error. "" marks an error on the document root.
func collectInvalidFields(err error, into map[string]bool) {
	verr, ok := err.(*jschema.ValidationError) //nolint:errorlint // library returns the concrete type
	if !ok {
		into[""] = true
		return
	}

	if req, ok := verr.ErrorKind.(*kind.Required); ok && len(verr.InstanceLocation) == 0 {
		for _, missing := range req.Missing {
			into[missing] = true
		}
	}

	if len(verr.Causes) == 0 {
		switch {
		case len(verr.InstanceLocation) > 0:
			into[verr.InstanceLocation[0]] = true
		case !isRequired(verr):
			into[""] = true
		}
		return
	}
	for _, cause := range verr.Causes {
		collectInvalidFields(cause, into)
	}
}

func isRequired(verr *jschema.ValidationError) bool {
	_, ok := verr.ErrorKind.(*kind.Required)
	return ok
}

// validationMessage renders the fields of a validation error as the
// client-facing message.
func validationMessage(fields []string) string {
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		if msg, ok := fieldMessages[f]; ok {
			msgs = append(msgs, msg)
		}
	}
	if len(msgs) == 0 {
		return "Invalid request."
	}
	return strings.Join(msgs, ",\n")
}
