package sddb

import (
	"strings"

	"github.com/creachadair/sealdb/sdcodec"
	"github.com/creachadair/sealdb/sdcrypt"
)

// Names of the system collections maintained by the store.
const (
	Users    = "_users"
	Sessions = "_sessions"
	Settings = "_settings"
	Ports    = "_ports"
)

// IsSystem reports whether name is the name of a system collection.
func IsSystem(name string) bool { return strings.HasPrefix(name, "_") }

// SystemSchemas returns the canonical schemas of the system collections.
func SystemSchemas() map[string]Schema {
	return map[string]Schema{
		Users: {
			{Name: "email", Type: "string"},
			{Name: "password", Type: "string"},
			{Name: "role", Type: "string"},
			{Name: "created", Type: "int"},
		},
		Sessions: {
			{Name: "user_id", Type: "string"},
			{Name: "token", Type: "string"},
			{Name: "expires", Type: "int"},
		},
		Settings: settingsSchema(),
		Ports: {
			{Name: "project", Type: "string"},
			{Name: "dev_port", Type: "int"},
			{Name: "prod_port", Type: "int"},
			{Name: "created", Type: "int"},
		},
	}
}

// settingDefault is a field of the settings document and its default value.
type settingDefault struct {
	name  string
	value Value
}

// settingDefaults are the fields every settings document is expected to
// have, in schema order.
var settingDefaults = []settingDefault{
	{"page_title", sdcodec.String("My Site")},
	{"meta_description", sdcodec.String("A personal web site.")},
	{"meta_keywords", sdcodec.String("personal, web")},
	{"og_title", sdcodec.String("My Site")},
	{"og_description", sdcodec.String("A personal web site.")},
	{"og_image", sdcodec.String("")},
	{"twitter_card", sdcodec.String("summary_large_image")},
	{"canonical_url", sdcodec.String("")},
	{"nginx_hostname", sdcodec.String("proxy.example.com")},
	{"nginx_internal_ip", sdcodec.String("192.168.1.4")},
	{"dev_network_name", sdcodec.String("dev")},
	{"dev_network_subnet", sdcodec.String("10.35.0.0/24")},
	{"dev_ip_base", sdcodec.String("10.35.0.")},
	{"prod_network_name", sdcodec.String("prod")},
	{"prod_network_subnet", sdcodec.String("10.36.0.0/24")},
	{"prod_ip_base", sdcodec.String("10.36.0.")},
	{"app_port", sdcodec.Int(3460)},
	{"dev_port_start", sdcodec.Int(3501)},
	{"dev_port_end", sdcodec.Int(3599)},
	{"prod_port_start", sdcodec.Int(3601)},
	{"prod_port_end", sdcodec.Int(3699)},
}

func settingsSchema() Schema {
	s := make(Schema, len(settingDefaults))
	for i, d := range settingDefaults {
		s[i] = Field{Name: d.name, Type: sdcodec.KindOf(d.value).String()}
	}
	return s
}

// DefaultSettings returns a settings document populated with default values
// and no reserved fields.
func DefaultSettings() Document {
	doc := make(Document, len(settingDefaults))
	for _, d := range settingDefaults {
		doc[d.name] = d.value
	}
	return doc
}

// migrate ensures that the system collections exist with their canonical
// schemas, and that the settings collection holds at least one document with
// every expected field. It reports whether anything changed.
func (db *DB) migrate() (bool, error) {
	db.colMu.Lock()
	defer db.colMu.Unlock()
	db.schemaMu.Lock()
	defer db.schemaMu.Unlock()

	var changed bool
	for name, schema := range SystemSchemas() {
		if _, ok := db.schemas[name]; !ok {
			db.schemas[name] = schema
			changed = true
			db.log.Infow("created system collection", "name", name)
		}
		if _, ok := db.cols[name]; !ok {
			db.cols[name] = make(map[string]Document)
			changed = true
		}
	}

	settings := db.cols[Settings]
	if len(settings) == 0 {
		id, err := sdcrypt.RandomHex(IDLen)
		if err != nil {
			return false, err
		}
		doc := DefaultSettings()
		ts := sdcodec.Int(db.timestamp())
		doc["id"], doc["created"], doc["updated"] = sdcodec.String(id), ts, ts
		settings[id] = doc
		db.log.Infow("seeded default settings", "id", id)
		return true, nil
	}
	for id, doc := range settings {
		var filled []string
		for _, d := range settingDefaults {
			if _, ok := doc[d.name]; !ok {
				doc[d.name] = d.value
				filled = append(filled, d.name)
			}
		}
		if len(filled) != 0 {
			changed = true
			db.log.Infow("filled missing settings", "id", id, "fields", filled)
		}
	}
	return changed, nil
}
