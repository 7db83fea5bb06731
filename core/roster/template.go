package roster

import (
	"bytes"
	"encoding/csv"
)

// templateRows are the sample rows of the import template.
var templateRows = [][]string{
	{"أحمد علي", "ahmad@example.com", "+972501234567", ""},
	{"Sara Cohen", "sara@example.com", "+972521112233", "Sara2024"},
	{"محمد خالد", "", "+972541234567", ""},
	{"Lina Haddad", "lina@example.com", "", ""},
}

// TemplateFilename is the name the template is downloaded as.
const TemplateFilename = "roster_template.csv"

// Template returns the import template: UTF-8 BOM so spreadsheets pick the encoding,
// the canonical headers, then a few sample rows.
func Template() []byte {
	var buf bytes.Buffer
	buf.WriteString(utf8BOM)

	header := make([]string, len(CanonicalFields))
	for i, f := range CanonicalFields {
		header[i] = string(f)
	}

	w := csv.NewWriter(&buf)
	w.UseCRLF = true
	_ = w.Write(header)
	_ = w.WriteAll(templateRows) // writes to memory, never fails
	return buf.Bytes()
}
