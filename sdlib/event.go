package sdlib

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/creachadair/sealdb/sdcodec"
	"github.com/creachadair/sealdb/sddb"
)

// HiddenFields returns the names of fields of documents in coll that are
// never shown outside the store: password hashes of user accounts.
func HiddenFields(coll string) []string {
	if coll == sddb.Users {
		return []string{"password"}
	}
	return nil
}

// Visible returns a copy of doc from coll without its hidden fields.
func Visible(coll string, doc sddb.Document) sddb.Document {
	out := doc.Clone()
	for _, name := range HiddenFields(coll) {
		delete(out, name)
	}
	return out
}

// WriteDocument writes doc from coll to w as a line of JSON, without its
// hidden fields.
func WriteDocument(w io.Writer, coll string, doc sddb.Document) error {
	data, err := sdcodec.MarshalDocument(doc, HiddenFields(coll)...)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// wireEvent is the JSON shape of a change notification.
type wireEvent struct {
	Type       sddb.EventKind  `json:"type"`
	Collection string          `json:"collection"`
	ID         string          `json:"id,omitempty"`
	Doc        json.RawMessage `json:"doc,omitempty"`
}

// EncodeEvent renders e as a JSON change notification of the form
//
//	{"type":"doc.created","collection":"notes","id":"...","doc":{...}}
//
// The id and doc fields are omitted when e has none. Password hashes are
// removed from user documents.
func EncodeEvent(e sddb.Event) ([]byte, error) {
	w := wireEvent{Type: e.Kind, Collection: e.Collection, ID: e.ID}
	if e.Doc != nil {
		doc, err := sdcodec.MarshalDocument(e.Doc, HiddenFields(e.Collection)...)
		if err != nil {
			return nil, err
		}
		w.Doc = doc
	}
	return json.Marshal(w)
}
