package model

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// InvalidResourceError reports bad input to New.
type InvalidResourceError struct {
	Type     string
	ID       string
	Relation string
	Reason   string
}

func (e *InvalidResourceError) Error() string {
	return fmt.Sprintf("invalid resource %s: %s", describe(e.Type, e.ID, e.Relation), e.Reason)
}

// UnresolvableRelationError is returned by the link resolver when a relation
// requested for embedding is not declared on the resource.
type UnresolvableRelationError struct {
	Type     string
	ID       string
	Relation string
}

func (e *UnresolvableRelationError) Error() string {
	return fmt.Sprintf("cannot embed relation %q: not declared on %s", e.Relation, describe(e.Type, e.ID, ""))
}

// RelationNotFoundError is returned by traversal when the current resource has no link for a relation.
type RelationNotFoundError struct {
	Type     string
	ID       string
	Relation string
}

func (e *RelationNotFoundError) Error() string {
	return fmt.Sprintf("relation %q not found on %s", e.Relation, describe(e.Type, e.ID, ""))
}

// UnsupportedFormatError names a wire format that has no codec.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format %q", e.Format)
}

// UnknownTypeError names a resource type that was never registered.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown resource type %q", e.Type)
}

// MalformedDocumentError reports a structural violation found while decoding.
type MalformedDocumentError struct {
	Format string
	Reason string
	Err    error
}

func (e *MalformedDocumentError) Error() string {
	msg := fmt.Sprintf("malformed %s document: %s", e.Format, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedDocumentError) Unwrap() error {
	return e.Err
}

// FetchError wraps a transport failure for a link.
type FetchError struct {
	URL      string
	Type     string
	ID       string
	Relation string
	Err      error
}

func (e *FetchError) Error() string {
	if e.Relation != "" {
		return fmt.Sprintf("fetch %s (relation %q of %s): %v", e.URL, e.Relation, describe(e.Type, e.ID, ""), e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned when a fetch exceeded the caller's deadline.
type TimeoutError struct {
	URL      string
	Type     string
	ID       string
	Relation string
	Err      error
}

func (e *TimeoutError) Error() string {
	if e.Relation != "" {
		return fmt.Sprintf("fetch %s (relation %q of %s) timed out: %v", e.URL, e.Relation, describe(e.Type, e.ID, ""), e.Err)
	}
	return fmt.Sprintf("fetch %s timed out: %v", e.URL, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

func describe(typ, id, relation string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("(type=%q, id=%q", typ, id))
	if relation != "" {
		b.WriteString(fmt.Sprintf(", relation=%q", relation))
	}
	b.WriteByte(')')
	return b.String()
}

// =============================================================================

// FieldError is used to indicate an error with a specific document field.
type FieldError struct {
	field   string
	details map[string]interface{}
	Message string `json:"message"`
}

func (fe FieldError) Field() string {
	return fe.field
}

func (fe FieldError) Details() map[string]interface{} {
	return fe.details
}

// ValidationError represents a collection of field errors.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// Error implements the error interface on ValidationError.
func (fe ValidationError) Error() string {
	d, err := json.Marshal(fe)
	if err != nil {
		return err.Error()
	}

	return string(d)
}

// NewValidationError builds a ValidationError from plain messages.
func NewValidationError(messages []string) ValidationError {
	errs := make([]FieldError, 0, len(messages))
	for _, msg := range messages {
		errs = append(errs, FieldError{Message: msg})
	}
	return ValidationError{Errors: errs}
}

func ToValidationError(result *gojsonschema.Result) ValidationError {
	errs := make([]FieldError, 0, len(result.Errors()))
	for _, res := range result.Errors() {
		switch res.(type) {
		case *gojsonschema.NumberAllOfError, *gojsonschema.NumberAnyOfError, *gojsonschema.NumberOneOfError:
			continue
		default:
			errs = append(errs, FieldError{
				field:   res.Field(),
				details: res.Details(),
				Message: newErrorMessage(res),
			})
		}
	}

	res := ValidationError{
		Errors: errs,
	}
	SortErrors(&res)

	return res
}

func SortErrors(e *ValidationError) {
	slices.SortFunc(e.Errors, func(a, b FieldError) int { return cmp.Compare(a.Message, b.Message) })
}

// IsValidationError checks if an error of type ValidationError exists in the chain.
func IsValidationError(err error) bool {
	var fe ValidationError
	return errors.As(err, &fe)
}

func newErrorMessage(resErr gojsonschema.ResultError) string {
	switch resErr.(type) {
	case *gojsonschema.RequiredError:
		return fmt.Sprintf("Field '%s' is missing", resErr.Details()["property"])
	case *gojsonschema.StringLengthGTEError:
		return fmt.Sprintf("Field '%s' is too short", resErr.Field())
	case *gojsonschema.StringLengthLTEError:
		return fmt.Sprintf("Field '%s' is too long", resErr.Field())
	case *gojsonschema.ArrayMinItemsError:
		return fmt.Sprintf("Field '%s' must contain at least %d items", resErr.Field(), resErr.Details()["min"])
	case *gojsonschema.AdditionalPropertyNotAllowedError:
		return fmt.Sprintf("Field '%s' doesn't allow key: %s", resErr.Field(), resErr.Details()["property"])
	case *gojsonschema.InvalidTypeError:
		return fmt.Sprintf("Field '%s' should be of type %s", resErr.Field(), resErr.Details()["expected"])
	case *gojsonschema.DoesNotMatchPatternError:
		return fmt.Sprintf("Field '%s' should match pattern %s", resErr.Field(), resErr.Details()["pattern"])
	default:
		return fmt.Sprintf("[%T]: %s", resErr, resErr.Description())
	}
}
