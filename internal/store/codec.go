package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pitabwire/cardforge/model"
)

// Decode parses a collection document. Numbers are kept as json.Number so
// their authored text survives a save; keys other than the wrapper key are
// kept in Extra. A document without the wrapper key decodes as empty and is
// marked WrapperAbsent.
func Decode(info model.CollectionInfo, data []byte) (*model.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var top map[string]any
	if err := dec.Decode(&top); err != nil {
		return nil, err
	}
	var trailing any
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected content after the top-level object")
	}
	if top == nil {
		return nil, errors.New("top-level value must be an object")
	}

	doc := model.NewDocument(info.Name)
	raw, ok := top[info.WrapperKey]
	doc.WrapperAbsent = !ok
	if ok {
		list, isList := raw.([]any)
		if !isList && raw != nil {
			return nil, fmt.Errorf("%q must be a list", info.WrapperKey)
		}
		doc.Records = make([]model.Record, 0, len(list))
		for i, item := range list {
			m, isMap := item.(map[string]any)
			if !isMap {
				return nil, fmt.Errorf("%s[%d] must be an object", info.WrapperKey, i)
			}
			doc.Records = append(doc.Records, model.Record(m))
		}
	}

	for k, v := range top {
		if k == info.WrapperKey {
			continue
		}
		if doc.Extra == nil {
			doc.Extra = make(map[string]any)
		}
		doc.Extra[k] = v
	}
	return doc, nil
}

// Encode renders a collection document with four-space indentation. Unicode
// and HTML characters are written verbatim. The wrapper key is left out only
// for an empty document that was read without one.
func Encode(info model.CollectionInfo, doc *model.Document) ([]byte, error) {
	top := make(map[string]any, len(doc.Extra)+1)
	for k, v := range doc.Extra {
		top[k] = v
	}
	list := make([]any, len(doc.Records))
	for i, r := range doc.Records {
		list[i] = map[string]any(r)
	}
	if len(list) > 0 || !doc.WrapperAbsent {
		top[info.WrapperKey] = list
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(top); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
