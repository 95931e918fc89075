// Package seed loads template definitions from a directory of YAML files and
// keeps the catalog in step with it.
package seed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/fiche/internal/apperr"
	"github.com/starford/fiche/internal/models"
	"github.com/starford/fiche/internal/reconcile"
)

// Definition is one seed file.
//
//	company: Acme
//	activity: Photovoltaïque
//	name: Visite technique
//	fields:
//	  - {name: Société, type: short_text, required: true}
//	  - {name: Kbis, type: file_list, required_for_export: true}
type Definition struct {
	Company  string         `yaml:"company"`
	Activity string         `yaml:"activity"`
	Name     string         `yaml:"name"`
	Fields   []models.Field `yaml:"fields"`
}

// Parse decodes and checks a seed file. Unknown keys are rejected so typos
// in field flags do not pass silently.
func Parse(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var def Definition
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty seed file", apperr.ErrInvalid)
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}
	def.Company = strings.TrimSpace(def.Company)
	def.Activity = strings.TrimSpace(def.Activity)
	def.Name = strings.TrimSpace(def.Name)
	switch {
	case def.Company == "":
		return nil, fmt.Errorf("%w: company is required", apperr.ErrInvalid)
	case def.Activity == "":
		return nil, fmt.Errorf("%w: activity is required", apperr.ErrInvalid)
	case def.Name == "":
		return nil, fmt.Errorf("%w: name is required", apperr.ErrInvalid)
	}
	fields, err := reconcile.Replace(def.Fields)
	if err != nil {
		return nil, err
	}
	def.Fields = fields
	return &def, nil
}

// IsSeedFile reports whether path names a YAML seed file. Hidden files are
// skipped so editor swap files are ignored.
func IsSeedFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	return ext == ".yaml" || ext == ".yml"
}
