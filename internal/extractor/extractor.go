// Package extractor turns a loaded detail page into a CompanyRecord using a
// declarative list of field descriptors.
package extractor

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/user/listing-scraper/internal/entity"
	"github.com/user/listing-scraper/internal/repository"
)

// Mode says which part of a matched element is read.
type Mode int

const (
	ModeText Mode = iota
	ModeAttribute
)

// Field names. They match the CompanyRecord fields they fill.
const (
	FieldName        = "Name"
	FieldDescription = "Description"
	FieldServices    = "Services"
	FieldPhones      = "Phones"
	FieldAddress     = "Address"
	FieldWebsite     = "Website"
	FieldHours       = "Hours"
	FieldEmails      = "Emails"
)

// FieldDescriptor describes how to read one field from a detail page.
type FieldDescriptor struct {
	Field     string
	Selector  repository.Selector
	Mode      Mode
	Attribute string // used with ModeAttribute
	Multiple  bool   // read every match instead of the first
}

// DefaultSchema is the field set of a directory detail page.
func DefaultSchema() []FieldDescriptor {
	return []FieldDescriptor{
		{Field: FieldName, Selector: repository.Tag("h1"), Mode: ModeText},
		{Field: FieldDescription, Selector: repository.CSS("p.claim"), Mode: ModeText},
		{Field: FieldServices, Selector: repository.CSS("div.servicio-domicilio"), Mode: ModeText},
		{Field: FieldPhones, Selector: repository.CSS("span.telephone"), Mode: ModeText, Multiple: true},
		{Field: FieldAddress, Selector: repository.CSS("span.address"), Mode: ModeText},
		{Field: FieldWebsite, Selector: repository.CSS("a.sitio-web"), Mode: ModeAttribute, Attribute: "href"},
		{Field: FieldHours, Selector: repository.CSS("time[itemprop='openingHours']"), Mode: ModeText, Multiple: true},
	}
}

// RawValue is the uncleaned result of one descriptor. Found is false when the
// value is null: the element was missing or reading it failed.
type RawValue struct {
	Found  bool
	Values []string
}

// RawFieldMap maps field names to raw values.
type RawFieldMap map[string]RawValue

// Extractor evaluates a schema against a page.
type Extractor struct {
	schema []FieldDescriptor
	logger *zap.Logger
}

// New returns an Extractor for schema. A nil schema means DefaultSchema.
func New(schema []FieldDescriptor, logger *zap.Logger) *Extractor {
	if schema == nil {
		schema = DefaultSchema()
	}
	return &Extractor{schema: schema, logger: logger}
}

// ExtractFields reads every descriptor from page. It never fails: a field that
// cannot be read is returned as a null RawValue.
func (e *Extractor) ExtractFields(ctx context.Context, page repository.Page) RawFieldMap {
	raw := make(RawFieldMap, len(e.schema))
	for _, fd := range e.schema {
		var (
			val RawValue
			err error
		)
		if fd.Multiple {
			val, err = e.extractAll(ctx, page, fd)
		} else {
			val, err = e.extractOne(ctx, page, fd)
		}
		if err != nil {
			e.logger.Debug("field not extracted",
				zap.String("field", fd.Field),
				zap.Stringer("selector", fd.Selector),
				zap.Error(err),
			)
		}
		raw[fd.Field] = val
	}
	return raw
}

func (e *Extractor) extractOne(ctx context.Context, page repository.Page, fd FieldDescriptor) (RawValue, error) {
	el, err := page.FindElement(ctx, fd.Selector)
	if err != nil {
		return RawValue{}, err
	}
	v, err := read(ctx, el, fd)
	if err != nil {
		return RawValue{}, err
	}
	return RawValue{Found: true, Values: []string{v}}, nil
}

func (e *Extractor) extractAll(ctx context.Context, page repository.Page, fd FieldDescriptor) (RawValue, error) {
	els, err := page.FindAll(ctx, fd.Selector)
	if err != nil {
		return RawValue{}, err
	}
	values := make([]string, 0, len(els))
	for _, el := range els {
		v, err := read(ctx, el, fd)
		if err != nil {
			return RawValue{}, err
		}
		values = append(values, v)
	}
	return RawValue{Found: true, Values: values}, nil
}

func read(ctx context.Context, el repository.Element, fd FieldDescriptor) (string, error) {
	if fd.Mode == ModeAttribute {
		return el.Attribute(ctx, fd.Attribute)
	}
	return el.Text(ctx)
}

// Normalize cleans raw values into a record: values are joined with ", ",
// newlines become spaces, surrounding whitespace is trimmed and null becomes "".
func Normalize(raw RawFieldMap, searchTerm, locality string) entity.CompanyRecord {
	return entity.CompanyRecord{
		Name:        clean(raw[FieldName]),
		Description: clean(raw[FieldDescription]),
		Services:    clean(raw[FieldServices]),
		Phones:      clean(raw[FieldPhones]),
		Address:     clean(raw[FieldAddress]),
		Website:     clean(raw[FieldWebsite]),
		Hours:       clean(raw[FieldHours]),
		SearchTerm:  searchTerm,
		Locality:    locality,
		Emails:      clean(raw[FieldEmails]),
	}
}

var newlines = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func clean(v RawValue) string {
	if !v.Found {
		return ""
	}
	return strings.TrimSpace(newlines.Replace(strings.Join(v.Values, ", ")))
}
