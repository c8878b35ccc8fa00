package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/user/listing-scraper/internal/entity"
	"github.com/user/listing-scraper/internal/repository"
)

type fakeElement struct {
	text    string
	attrs   map[string]string
	textErr error
}

func (e fakeElement) Text(context.Context) (string, error) {
	if e.textErr != nil {
		return "", e.textErr
	}
	return e.text, nil
}

func (e fakeElement) Attribute(_ context.Context, name string) (string, error) {
	v, ok := e.attrs[name]
	if !ok {
		return "", repository.ErrAttributeMissing
	}
	return v, nil
}

func (fakeElement) Click(context.Context) error            { return nil }
func (fakeElement) SendKeys(context.Context, string) error { return nil }

// fakePage maps selector values to their matches. Selectors listed in broken fail lookups.
type fakePage struct {
	matches map[string][]fakeElement
	broken  map[string]bool
}

func (p fakePage) FindElement(ctx context.Context, sel repository.Selector) (repository.Element, error) {
	els, err := p.FindAll(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, repository.ErrElementNotFound
	}
	return els[0], nil
}

func (p fakePage) FindAll(_ context.Context, sel repository.Selector) ([]repository.Element, error) {
	if p.broken[sel.Value] {
		return nil, errors.New("lookup failed")
	}
	var out []repository.Element
	for _, el := range p.matches[sel.Value] {
		out = append(out, el)
	}
	return out, nil
}

func text(s string) fakeElement { return fakeElement{text: s} }

func TestExtractFieldsFullPage(t *testing.T) {
	page := fakePage{matches: map[string][]fakeElement{
		"h1":                     {text("Fontanería Pérez\n")},
		"p.claim":                {text("  Reparaciones urgentes 24h ")},
		"div.servicio-domicilio": {text("Servicio a domicilio")},
		"span.telephone":         {text("912 345 678"), text("900111222")},
		"span.address":           {text("Calle Mayor 1,\n28013 Madrid")},
		"a.sitio-web":            {{attrs: map[string]string{"href": "https://fontaneriaperez.es/"}}},
	}}
	page.matches["time[itemprop='openingHours']"] = []fakeElement{text("09:00-14:00"), text("16:00-20:00")}

	ex := New(nil, zap.NewNop())
	rec := Normalize(ex.ExtractFields(context.Background(), page), "fontaneros", "Madrid")

	want := entity.CompanyRecord{
		Name:        "Fontanería Pérez",
		Description: "Reparaciones urgentes 24h",
		Services:    "Servicio a domicilio",
		Phones:      "912 345 678, 900111222",
		Address:     "Calle Mayor 1, 28013 Madrid",
		Website:     "https://fontaneriaperez.es/",
		Hours:       "09:00-14:00, 16:00-20:00",
		SearchTerm:  "fontaneros",
		Locality:    "Madrid",
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractFieldsMissingAndFailing(t *testing.T) {
	page := fakePage{
		matches: map[string][]fakeElement{
			"h1":           {text("Acme")},
			"span.address": {{textErr: errors.New("stale node")}},
			"a.sitio-web":  {{attrs: map[string]string{}}},
		},
		broken: map[string]bool{"time[itemprop='openingHours']": true},
	}

	raw := New(nil, zap.NewNop()).ExtractFields(context.Background(), page)

	assert.Equal(t, RawValue{Found: true, Values: []string{"Acme"}}, raw[FieldName])
	assert.False(t, raw[FieldDescription].Found, "missing single element is null")
	assert.False(t, raw[FieldAddress].Found, "read error is null")
	assert.False(t, raw[FieldWebsite].Found, "missing attribute is null")
	assert.False(t, raw[FieldHours].Found, "failed lookup of a multi field is null")
	assert.Equal(t, RawValue{Found: true, Values: []string{}}, raw[FieldPhones], "empty match set is found but empty")

	rec := Normalize(raw, "t", "l")
	assert.Equal(t, "Acme", rec.Name)
	assert.Equal(t, "", rec.Address)
	assert.Equal(t, "", rec.Phones)
	assert.Equal(t, "", rec.Hours)
	assert.Equal(t, "", rec.Website)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  RawValue
		want string
	}{
		{"null", RawValue{}, ""},
		{"empty list", RawValue{Found: true, Values: []string{}}, ""},
		{"single", RawValue{Found: true, Values: []string{"  Acme  "}}, "Acme"},
		{"multi", RawValue{Found: true, Values: []string{"09:00-14:00", "16:00-20:00"}}, "09:00-14:00, 16:00-20:00"},
		{"newlines", RawValue{Found: true, Values: []string{"line one\nline two\r\n"}}, "line one line two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Normalize(RawFieldMap{FieldHours: tt.raw}, "term", "loc")
			assert.Equal(t, tt.want, rec.Hours)
			assert.Equal(t, "term", rec.SearchTerm)
			assert.Equal(t, "loc", rec.Locality)
		})
	}
}

func TestCustomSchema(t *testing.T) {
	schema := []FieldDescriptor{
		{Field: FieldName, Selector: repository.ID("title"), Mode: ModeText},
		{Field: FieldEmails, Selector: repository.CSS("a.email"), Mode: ModeAttribute, Attribute: "data-email", Multiple: true},
	}
	page := fakePage{matches: map[string][]fakeElement{
		"title": {text("Acme")},
		"a.email": {
			{attrs: map[string]string{"data-email": "Info@Acme.es"}},
			{attrs: map[string]string{"data-email": "ventas@acme.es"}},
		},
	}}

	rec := Normalize(New(schema, zap.NewNop()).ExtractFields(context.Background(), page), "t", "l")
	assert.Equal(t, "Acme", rec.Name)
	assert.Equal(t, "Info@Acme.es, ventas@acme.es", rec.Emails)
	assert.Empty(t, rec.Phones)
}
