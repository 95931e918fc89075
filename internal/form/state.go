package form

import "github.com/starford/fiche/internal/models"

// State is the per-session widget store. It is plain data so session backends
// can persist it as JSON.
type State struct {
	Generations map[string]uint64 `json:"generations,omitempty"`
	Scopes      map[string]*Scope `json:"scopes,omitempty"`
}

// Scope holds the widget state of one open form: a template plus the record
// being edited (empty for a new record).
type Scope struct {
	TemplateID string              `json:"template_id"`
	RecordID   string              `json:"record_id,omitempty"`
	Generation uint64              `json:"generation"`
	Values     map[string]any      `json:"values,omitempty"`
	CopyMain   map[string]bool     `json:"copy_main,omitempty"`
	Uploads    map[string][]string `json:"uploads,omitempty"`
	// Pending holds auto-fill values by field name, consumed by the next render.
	Pending map[string]any `json:"pending,omitempty"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		Generations: make(map[string]uint64),
		Scopes:      make(map[string]*Scope),
	}
}

// Generation returns the current generation for templateID.
func (s *State) Generation(templateID string) uint64 {
	return s.Generations[templateID]
}

func scopeID(templateID, recordID string) string {
	return templateID + "|" + recordID
}

// scope returns the scope for the form, creating it and discarding any scope
// left over from an earlier generation.
func (s *State) scope(templateID, recordID string) *Scope {
	if s.Generations == nil {
		s.Generations = make(map[string]uint64)
	}
	if s.Scopes == nil {
		s.Scopes = make(map[string]*Scope)
	}
	gen := s.Generations[templateID]
	id := scopeID(templateID, recordID)
	sc, ok := s.Scopes[id]
	if !ok || sc.Generation != gen {
		sc = &Scope{TemplateID: templateID, RecordID: recordID, Generation: gen}
		s.Scopes[id] = sc
	}
	if sc.Values == nil {
		sc.Values = make(map[string]any)
	}
	if sc.CopyMain == nil {
		sc.CopyMain = make(map[string]bool)
	}
	if sc.Uploads == nil {
		sc.Uploads = make(map[string][]string)
	}
	return sc
}

// SetPending queues auto-fill values for the next render of the form.
func (s *State) SetPending(templateID, recordID string, values map[string]any) {
	if len(values) == 0 {
		return
	}
	sc := s.scope(templateID, recordID)
	if sc.Pending == nil {
		sc.Pending = make(map[string]any, len(values))
	}
	for k, v := range values {
		sc.Pending[k] = v
	}
}

// Reset discards the widget state of one form without bumping the generation.
// It returns the URLs uploaded in that form that were never submitted.
func (s *State) Reset(templateID, recordID string) []string {
	id := scopeID(templateID, recordID)
	sc, ok := s.Scopes[id]
	if !ok {
		return nil
	}
	delete(s.Scopes, id)
	var urls []string
	for _, list := range sc.Uploads {
		urls = append(urls, list...)
	}
	return urls
}

// Complete records a successful submission for templateID: the generation is
// bumped and every open form of that template is discarded, so no key from
// the previous generation can resolve again.
func (s *State) Complete(templateID string) uint64 {
	if s.Generations == nil {
		s.Generations = make(map[string]uint64)
	}
	s.Generations[templateID]++
	for id, sc := range s.Scopes {
		if sc.TemplateID == templateID {
			delete(s.Scopes, id)
		}
	}
	return s.Generations[templateID]
}

// SetValue writes a scalar widget value addressed by its key string.
func (s *State) SetValue(tpl *models.Template, recordID, key string, value any) error {
	k, f, err := s.resolveKey(tpl, key)
	if err != nil {
		return err
	}
	switch f.Type {
	case models.FileList, models.SectionHeader:
		return ErrWrongType
	}
	sc := s.scope(tpl.ID, recordID)
	ks := k.String()
	if f.Type == models.WorkAddress && sc.CopyMain[ks] {
		return ErrReadOnly
	}
	sc.Values[ks] = normalize(f.Type, value)
	return nil
}

// SetCopyMain toggles "copy from main address" on a work-address widget.
func (s *State) SetCopyMain(tpl *models.Template, recordID, key string, on bool) error {
	k, f, err := s.resolveKey(tpl, key)
	if err != nil {
		return err
	}
	if f.Type != models.WorkAddress {
		return ErrWrongType
	}
	sc := s.scope(tpl.ID, recordID)
	if on {
		sc.CopyMain[k.String()] = true
	} else {
		delete(sc.CopyMain, k.String())
	}
	return nil
}

// AddUploads appends uploaded file URLs to a file-list widget.
func (s *State) AddUploads(tpl *models.Template, recordID, key string, urls ...string) error {
	k, f, err := s.resolveKey(tpl, key)
	if err != nil {
		return err
	}
	if f.Type != models.FileList {
		return ErrWrongType
	}
	sc := s.scope(tpl.ID, recordID)
	ks := k.String()
	sc.Uploads[ks] = models.MergeURLs(sc.Uploads[ks], urls)
	return nil
}

// CheckKey reports whether key currently addresses a field of type t.
func (s *State) CheckKey(tpl *models.Template, key string, t models.FieldType) error {
	_, f, err := s.resolveKey(tpl, key)
	if err != nil {
		return err
	}
	if f.Type != t {
		return ErrWrongType
	}
	return nil
}

// resolveKey checks that key belongs to the current generation of tpl and
// still designates the same field.
func (s *State) resolveKey(tpl *models.Template, key string) (Key, models.Field, error) {
	k, err := ParseKey(key)
	if err != nil {
		return Key{}, models.Field{}, err
	}
	if k.TemplateID != tpl.ID {
		return Key{}, models.Field{}, ErrUnknownKey
	}
	if k.Generation != s.Generation(tpl.ID) {
		return Key{}, models.Field{}, ErrStaleKey
	}
	if k.Position >= len(tpl.Fields) || tpl.Fields[k.Position].Name != k.FieldName {
		return Key{}, models.Field{}, ErrUnknownKey
	}
	return k, tpl.Fields[k.Position], nil
}
