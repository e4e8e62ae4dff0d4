package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"stacingest/domain/ingest"
	"stacingest/domain/summary"
)

const (
	MsgRendersParse = "Invalid JSON format. Please enter a valid JSON object."
	MsgRendersShape = "Renders must be a JSON object."
	MsgDateType     = "Must be a string or null."
	MsgDateFormat   = "Invalid datetime format. Expected YYYY-MM-DDTHH:mm:ss[.sss]Z."
	MsgDateOrder    = "End date must be after start date."
	MsgSetEmpty     = "Set summaries must contain at least one value."
	MsgRangeOrder   = "Range minimum must not be greater than maximum."
	MsgStacVersion  = "STAC version must be a semantic version such as 1.0.0."
)

var rfc3339Pattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})$`)

func semanticErrors(doc ingest.Document) []FieldError {
	var errs []FieldError
	errs = append(errs, rendersErrors(doc)...)
	errs = append(errs, temporalErrors(doc)...)
	errs = append(errs, summariesErrors(doc)...)
	errs = append(errs, versionErrors(doc)...)
	return errs
}

func rendersErrors(doc ingest.Document) []FieldError {
	text, ok := doc[ingest.FieldRenders].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return nil
	}
	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return []FieldError{{Path: ingest.FieldRenders, Message: MsgRendersParse, Kind: KindJSONParse}}
	}
	if _, isObject := parsed.(map[string]any); !isObject {
		return []FieldError{{Path: ingest.FieldRenders, Message: MsgRendersShape, Kind: KindJSONShape}}
	}
	return nil
}

func temporalErrors(doc ingest.Document) []FieldError {
	extent, ok := asObject(doc[ingest.FieldTemporalExtent])
	if !ok {
		return nil
	}

	var errs []FieldError
	parsed := make(map[string]time.Time, 2)
	for _, field := range []string{ingest.FieldStartDate, ingest.FieldEndDate} {
		path := ingest.FieldTemporalExtent + "." + field
		v, present := extent[field]
		if !present || v == nil {
			continue
		}
		s, isString := v.(string)
		if !isString {
			errs = append(errs, FieldError{Path: path, Message: MsgDateType, Kind: KindDateType})
			continue
		}
		if s == "" {
			continue
		}
		t, ok := ParseDateTime(s)
		if !ok {
			errs = append(errs, FieldError{Path: path, Message: MsgDateFormat, Kind: KindDateFormat})
			continue
		}
		parsed[field] = t
	}

	start, hasStart := parsed[ingest.FieldStartDate]
	end, hasEnd := parsed[ingest.FieldEndDate]
	if hasStart && hasEnd && !start.Before(end) {
		errs = append(errs, FieldError{
			Path:    ingest.FieldTemporalExtent + "." + ingest.FieldEndDate,
			Message: MsgDateOrder,
			Kind:    KindDateOrder,
		})
	}
	return errs
}

// ParseDateTime accepts YYYY-MM-DDTHH:mm:ss[.sss] followed by Z or an offset
func ParseDateTime(s string) (time.Time, bool) {
	if !rfc3339Pattern.MatchString(s) {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func summariesErrors(doc ingest.Document) []FieldError {
	entries, ok := asObject(doc[ingest.FieldSummaries])
	if !ok {
		return nil
	}

	var errs []FieldError
	for _, key := range ingest.Document(entries).Keys() {
		path := ingest.FieldSummaries + "." + key
		raw := entries[key]
		switch summary.Infer(raw) {
		case summary.KindSet:
			if len(raw.([]any)) == 0 {
				errs = append(errs, FieldError{Path: path, Message: MsgSetEmpty, Kind: KindSummary})
			}
		case summary.KindRange:
			obj := raw.(map[string]any)
			minimum, okMin := obj["minimum"].(float64)
			maximum, okMax := obj["maximum"].(float64)
			if okMin && okMax && minimum > maximum {
				errs = append(errs, FieldError{Path: path, Message: MsgRangeOrder, Kind: KindSummary})
			}
		default:
			if err := ValidateFragment(raw); err != nil {
				errs = append(errs, FieldError{Path: path, Message: err.Error(), Kind: KindSummary})
			}
		}
	}
	return errs
}

func versionErrors(doc ingest.Document) []FieldError {
	v, ok := doc[ingest.FieldStacVersion].(string)
	if !ok || v == "" {
		return nil
	}
	if _, err := semver.StrictNewVersion(v); err != nil {
		return []FieldError{{Path: ingest.FieldStacVersion, Message: MsgStacVersion, Kind: KindVersion}}
	}
	return nil
}

const fragmentURL = "https://stacingest.local/fragments/summary.json"

// ValidateFragment checks that raw is a valid JSON Schema. A string must
// hold the schema as JSON text.
func ValidateFragment(raw any) error {
	doc := raw
	if text, ok := raw.(string); ok {
		var parsed any
		if err := json.Unmarshal([]byte(text), &parsed); err != nil {
			return fmt.Errorf("Invalid JSON Schema: %v", err)
		}
		doc = parsed
	}

	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft2020)
	c.AssertFormat()
	if err := c.AddResource(fragmentURL, ingest.DeepCopy(doc)); err != nil {
		return fmt.Errorf("Invalid JSON Schema: %v", err)
	}
	if _, err := c.Compile(fragmentURL); err != nil {
		return fmt.Errorf("Invalid JSON Schema: %s", compileDetail(err))
	}
	return nil
}

func compileDetail(err error) string {
	var sve *jsonschema.SchemaValidationError
	if errors.As(err, &sve) {
		var ve *jsonschema.ValidationError
		if errors.As(sve.Err, &ve) {
			if leaf := firstLeaf(ve); leaf != nil {
				msg := leaf.ErrorKind.LocalizedString(printer)
				if len(leaf.InstanceLocation) == 0 {
					return msg
				}
				return "/" + strings.Join(leaf.InstanceLocation, "/") + ": " + msg
			}
		}
	}
	return err.Error()
}

func firstLeaf(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}

func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case ingest.Document:
		return map[string]any(t), true
	}
	return nil, false
}
