package mcpserver

// FieldTypesContract describes the field types a template may use and the
// record value shape each one expects. LLM consumers should read it before
// calling create_record.
const FieldTypesContract = `# Fiche Field Types

A template is an ordered list of fields. A record stores its values in a
JSON object keyed by field name. Keys that match no field are kept on
existing records but ignored when creating one.

| type           | value in record data                         | notes |
|----------------|----------------------------------------------|-------|
| short_text     | string                                       | single line |
| long_text      | string                                       | multi line |
| number         | number (a numeric string is accepted)        | "12,5" is read as 12.5 |
| date           | string ` + "`YYYY-MM-DD`" + `                            | |
| checkbox       | boolean                                      | required means it must be true |
| file_list      | array of URLs                                | use attach_document to add files |
| company_id     | string (SIRET or SIREN)                      | drives company auto-fill |
| address        | string                                       | main address |
| work_address   | string                                       | site address, may copy the main one |
| section_header | none                                         | layout only, never holds a value |

## Rules

1. A field flagged ` + "`required`" + ` must hold a non-empty value or the record is
   rejected with one message per failing field.
2. A file_list flagged ` + "`required_for_export`" + ` blocks the PDF export while empty;
   it does not block saving.
3. Two fields may share a name only when they have the same type; they then
   share one value.
4. Renaming a field does not move existing values: records keep the old key
   until an admin migrates it.

## Example

` + "```" + `json
{
  "template_id": "0b5c…",
  "data": {
    "Raison sociale": "Soleil SARL",
    "SIRET": "40483304800022",
    "Date de visite": "2026-03-02",
    "Accord client": true
  }
}
` + "```" + `
`
