package entity

import "fmt"

// Columns is the fixed column order of the persisted CSV table.
var Columns = []string{
	"Name",
	"Description",
	"Services",
	"Phones",
	"Address",
	"Website",
	"Hours",
	"SearchTerm",
	"Locality",
}

// Identity is the ordered tuple of all persisted column values. Two records
// with equal identities are duplicates.
type Identity [9]string

// CompanyRecord is one business listing extracted from a detail page.
type CompanyRecord struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Services    string `json:"services"`
	Phones      string `json:"phones"`
	Address     string `json:"address"`
	Website     string `json:"website"`
	Hours       string `json:"hours"`
	SearchTerm  string `json:"search_term"`
	Locality    string `json:"locality"`

	// Emails is not one of the persisted columns. It is only mirrored to Postgres.
	Emails string `json:"emails,omitempty"`

	// SourceURL is the detail page the record was extracted from.
	SourceURL string `json:"source_url,omitempty"`
}

// Values returns the column values in Columns order.
func (r CompanyRecord) Values() []string {
	id := r.Identity()
	return id[:]
}

func (r CompanyRecord) Identity() Identity {
	return Identity{
		r.Name,
		r.Description,
		r.Services,
		r.Phones,
		r.Address,
		r.Website,
		r.Hours,
		r.SearchTerm,
		r.Locality,
	}
}

// RecordFromRow builds a record from a CSV row in Columns order.
func RecordFromRow(row []string) (CompanyRecord, error) {
	if len(row) != len(Columns) {
		return CompanyRecord{}, fmt.Errorf("expected %d fields, got %d", len(Columns), len(row))
	}
	return CompanyRecord{
		Name:        row[0],
		Description: row[1],
		Services:    row[2],
		Phones:      row[3],
		Address:     row[4],
		Website:     row[5],
		Hours:       row[6],
		SearchTerm:  row[7],
		Locality:    row[8],
	}, nil
}
