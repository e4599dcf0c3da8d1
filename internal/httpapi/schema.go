// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"github.com/samber/oops"

	"github.com/trailhead/trailhead/internal/auth"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Request bodies. Fields without omitempty are required by the reflected schema.
type (
	signupRequest struct {
		Name            string `json:"name" jsonschema:"description=Display name"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		PasswordConfirm string `json:"passwordConfirm"`
	}

	// Login fields are optional in the schema: a missing field must fail in
	// Service.Login with the same error as a wrong password.
	loginRequest struct {
		Email    string `json:"email,omitempty"`
		Password string `json:"password,omitempty"`
	}

	forgotPasswordRequest struct {
		Email string `json:"email"`
	}

	resetPasswordRequest struct {
		Password        string `json:"password"`
		PasswordConfirm string `json:"passwordConfirm"`
	}

	updatePasswordRequest struct {
		PasswordCurrent string `json:"passwordCurrent"`
		Password        string `json:"password"`
		PasswordConfirm string `json:"passwordConfirm"`
	}

	updateMeRequest struct {
		Name  *string `json:"name,omitempty"`
		Email *string `json:"email,omitempty"`
	}
)

// requestTypes names every validated request body.
var requestTypes = map[string]any{
	"signup":          &signupRequest{},
	"login":           &loginRequest{},
	"forgot-password": &forgotPasswordRequest{},
	"reset-password":  &resetPasswordRequest{},
	"update-password": &updatePasswordRequest{},
	"update-me":       &updateMeRequest{},
}

func reflectSchema(name string) *jsonschema.Schema {
	r := jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
		// Unknown keys such as a requested role are ignored rather than rejected.
		AllowAdditionalProperties: true,
	}
	schema := r.Reflect(requestTypes[name])
	schema.Title = "Trailhead " + name + " request"
	return schema
}

// Schemas returns the JSON Schema of every request body, keyed by name.
func Schemas() (map[string][]byte, error) {
	out := make(map[string][]byte, len(requestTypes))
	for name := range requestTypes {
		data, err := json.MarshalIndent(reflectSchema(name), "", "  ")
		if err != nil {
			return nil, oops.With("schema", name).Wrapf(err, "marshal schema")
		}
		out[name] = data
	}
	return out, nil
}

// SchemaNames returns the request names in sorted order.
func SchemaNames() []string {
	names := make([]string, 0, len(requestTypes))
	for name := range requestTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var compiledSchemas = sync.OnceValues(func() (map[string]*jschema.Schema, error) {
	c := jschema.NewCompiler()
	for name := range requestTypes {
		data, err := json.Marshal(reflectSchema(name))
		if err != nil {
			return nil, oops.With("schema", name).Wrapf(err, "marshal schema")
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, oops.With("schema", name).Wrapf(err, "parse schema")
		}
		if err := c.AddResource(name+".json", doc); err != nil {
			return nil, oops.With("schema", name).Wrapf(err, "add schema resource")
		}
	}

	out := make(map[string]*jschema.Schema, len(requestTypes))
	for name := range requestTypes {
		sch, err := c.Compile(name + ".json")
		if err != nil {
			return nil, oops.With("schema", name).Wrapf(err, "compile schema")
		}
		out[name] = sch
	}
	return out, nil
})

func badRequest(field, format string, args ...any) error {
	return oops.Code(auth.CodeValidation).With("field", field).Errorf(format, args...)
}

// readBody reads and parses a JSON request body into a generic document.
func readBody(w http.ResponseWriter, r *http.Request) (any, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, badRequest("body", "request body is too large")
		}
		return nil, badRequest("body", "could not read request body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, badRequest("body", "request body is required")
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, badRequest("body", "request body must be valid JSON")
	}
	return doc, nil
}

// decode validates doc against the named schema and unmarshals it into dst.
func decode(name string, doc any, dst any) error {
	schemas, err := compiledSchemas()
	if err != nil {
		return oops.Code(auth.CodeInternal).Wrap(err)
	}
	if err := schemas[name].Validate(doc); err != nil {
		var verr *jschema.ValidationError
		if errors.As(err, &verr) {
			return schemaError(verr)
		}
		return badRequest("body", "invalid request body")
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return oops.Code(auth.CodeInternal).Wrap(err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return badRequest("body", "invalid request body")
	}
	return nil
}

// schemaError reports the first leaf failure of a schema validation.
func schemaError(verr *jschema.ValidationError) error {
	leaf := verr
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}

	field := "body"
	if n := len(leaf.InstanceLocation); n > 0 {
		field = leaf.InstanceLocation[n-1]
	}

	switch k := leaf.ErrorKind.(type) {
	case *kind.Required:
		return badRequest(k.Missing[0], "%s is required", k.Missing[0])
	case *kind.Type:
		return badRequest(field, "%s must be %s", field, strings.Join(k.Want, " or "))
	default:
		return badRequest(field, "%s is invalid", field)
	}
}
