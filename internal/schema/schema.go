// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jeranaias/threadline/internal/model"
)

// ErrInvalidPayload is matched by every Errors value via errors.Is.
var ErrInvalidPayload = errors.New("invalid payload")

// =============================================================================
// VALIDATION ERRORS
// =============================================================================

// ValidationError describes one rule violation at a JSON path.
type ValidationError struct {
	Path    string
	Rule    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Errors is a collection of validation errors for one payload.
type Errors []ValidationError

func (e Errors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "invalid payload: " + strings.Join(msgs, "; ")
}

// Is makes errors.Is(err, ErrInvalidPayload) true for any Errors value.
func (e Errors) Is(target error) bool {
	return target == ErrInvalidPayload
}

// =============================================================================
// WIRE RECORDS
// =============================================================================

// Required fields are pointers so that "absent" and "zero" stay distinct.

type valueRecord struct {
	ID              *string         `json:"id" validate:"required,min=1"`
	Name            *string         `json:"name" validate:"required,min=1"`
	Type            *string         `json:"type" validate:"required,oneof=Input Output"`
	Value           json.RawMessage `json:"value"`
	Channels        map[string]int  `json:"channels" validate:"omitempty,dive,keys,min=1,endkeys,gte=0"`
	CreatedAt       *time.Time      `json:"createdAt" validate:"required"`
	CreatedBy       *string         `json:"createdBy" validate:"required"`
	CreatedByUserID *string         `json:"createdByUserId"`
}

type errorRecord struct {
	Code    *int    `json:"code" validate:"required"`
	Message *string `json:"message"`
	Data    *string `json:"data"`
	BlockID *string `json:"blockId"`
}

type messageRecord struct {
	ID              *string       `json:"id" validate:"required,min=1"`
	MessageThreadID *string       `json:"messageThreadId"`
	CreatedAt       *time.Time    `json:"createdAt" validate:"required"`
	CreatedBy       *string       `json:"createdBy" validate:"required"`
	CreatedByUserID *string       `json:"createdByUserId"`
	Errors          []errorRecord `json:"errors" validate:"omitempty,dive"`
	Values          []valueRecord `json:"values" validate:"omitempty,dive"`
}

type listRecord struct {
	Data []json.RawMessage `json:"data" validate:"required"`
}

// =============================================================================
// VALIDATOR
// =============================================================================

// Validator checks message payloads. It is safe for concurrent use.
type Validator struct {
	v *validator.Validate
}

// New creates a validator whose error paths use JSON field names.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// IsSyntaxValid reports whether payload is syntactically complete JSON.
func IsSyntaxValid(payload []byte) bool {
	return json.Valid(payload)
}

// Message validates a single message payload and converts it to a model.Message.
// The payload must already be syntactically valid JSON.
func (s *Validator) Message(payload []byte) (model.Message, error) {
	var rec messageRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return model.Message{}, decodeErrors(err)
	}
	if err := s.check(&rec); err != nil {
		return model.Message{}, err
	}
	return rec.toModel(), nil
}

// MessageList validates a thread history response of the form {"data": [...]}.
// Records are returned in server order; the first invalid record fails the list.
func (s *Validator) MessageList(payload []byte) ([]model.Message, error) {
	var list listRecord
	if err := json.Unmarshal(payload, &list); err != nil {
		return nil, decodeErrors(err)
	}
	if err := s.check(&list); err != nil {
		return nil, err
	}

	msgs := make([]model.Message, 0, len(list.Data))
	for i, raw := range list.Data {
		msg, err := s.Message(raw)
		if err != nil {
			return nil, prefixErrors(err, fmt.Sprintf("data[%d]", i))
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (s *Validator) check(rec any) error {
	err := s.v.Struct(rec)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return Errors{{Rule: "internal", Message: err.Error()}}
	}

	errs := make(Errors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, ValidationError{
			Path:    trimRoot(fe.Namespace()),
			Rule:    fe.Tag(),
			Message: ruleMessage(fe),
		})
	}
	return errs
}

// trimRoot drops the record type name validator puts in front of every namespace.
func trimRoot(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	default:
		return fmt.Sprintf("failed rule %q", fe.Tag())
	}
}

// decodeErrors converts a json.Unmarshal failure on valid JSON into Errors.
func decodeErrors(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return Errors{{
			Path:    typeErr.Field,
			Rule:    "type",
			Message: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
		}}
	}
	var timeErr *time.ParseError
	if errors.As(err, &timeErr) {
		return Errors{{Rule: "timestamp", Message: err.Error()}}
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return Errors{{Rule: "syntax", Message: err.Error()}}
	}
	return Errors{{Rule: "decode", Message: err.Error()}}
}

func prefixErrors(err error, prefix string) error {
	var errs Errors
	if !errors.As(err, &errs) {
		return err
	}
	out := make(Errors, len(errs))
	for i, e := range errs {
		if e.Path == "" {
			e.Path = prefix
		} else {
			e.Path = prefix + "." + e.Path
		}
		out[i] = e
	}
	return out
}

// =============================================================================
// CONVERSION
// =============================================================================

func (r messageRecord) toModel() model.Message {
	msg := model.Message{
		ID:              *r.ID,
		MessageThreadID: deref(r.MessageThreadID),
		CreatedAt:       *r.CreatedAt,
		CreatedBy:       *r.CreatedBy,
		CreatedByUserID: deref(r.CreatedByUserID),
		Values:          make([]model.MessageValue, 0, len(r.Values)),
	}
	for _, v := range r.Values {
		msg.Values = append(msg.Values, v.toModel())
	}
	if len(r.Errors) > 0 {
		msg.Errors = make([]model.ErrorRecord, 0, len(r.Errors))
		for _, e := range r.Errors {
			msg.Errors = append(msg.Errors, model.ErrorRecord{
				Code:    *e.Code,
				Message: deref(e.Message),
				Data:    deref(e.Data),
				BlockID: deref(e.BlockID),
			})
		}
	}
	return msg
}

func (r valueRecord) toModel() model.MessageValue {
	channels := r.Channels
	if channels == nil {
		channels = map[string]int{}
	}
	return model.MessageValue{
		ID:              *r.ID,
		Name:            *r.Name,
		Type:            model.ValueType(*r.Type),
		Value:           r.Value,
		Channels:        channels,
		CreatedAt:       *r.CreatedAt,
		CreatedBy:       *r.CreatedBy,
		CreatedByUserID: deref(r.CreatedByUserID),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
