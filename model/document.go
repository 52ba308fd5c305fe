package model

// Document is the in-memory form of one collection file:
// {"<wrapper key>": [records...]} plus any other top-level keys an author added.
type Document struct {
	Collection Collection
	Records    []Record
	// Extra holds top-level keys other than the wrapper key.
	Extra map[string]any
	// WrapperAbsent records a file that had no wrapper key. It stays absent
	// on save while the document has no records.
	WrapperAbsent bool
}

// NewDocument returns an empty document for c.
func NewDocument(c Collection) *Document {
	return &Document{Collection: c, Records: []Record{}}
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{Collection: d.Collection, Records: make([]Record, len(d.Records)), WrapperAbsent: d.WrapperAbsent}
	for i, r := range d.Records {
		out.Records[i] = r.Clone()
	}
	if d.Extra != nil {
		out.Extra = CloneValue(d.Extra).(map[string]any)
	}
	return out
}

// Find returns the first record whose idField equals id and its index, or -1.
func (d *Document) Find(idField, id string) (Record, int) {
	if d == nil {
		return nil, -1
	}
	for i, r := range d.Records {
		if r.String(idField) == id {
			return r, i
		}
	}
	return nil, -1
}

// IDs returns the id of every record in document order, including empty and
// repeated ids.
func (d *Document) IDs(idField string) []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.Records))
	for i, r := range d.Records {
		out[i] = r.String(idField)
	}
	return out
}

// Documents is a set of loaded collections.
type Documents map[Collection]*Document

// Records returns the records of c, or nil when c is not loaded.
func (ds Documents) Records(c Collection) []Record {
	if d, ok := ds[c]; ok && d != nil {
		return d.Records
	}
	return nil
}
