package sdlib

import (
	"cmp"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"

	"github.com/creachadair/sealdb/sdcodec"
	"github.com/creachadair/sealdb/sddb"
)

// PortRanges are the inclusive ranges from which development and production
// ports are allocated.
type PortRanges struct {
	DevStart, DevEnd   int
	ProdStart, ProdEnd int
}

// DefaultPortRanges are the ranges used when the settings do not specify them.
var DefaultPortRanges = PortRanges{DevStart: 3501, DevEnd: 3599, ProdStart: 3601, ProdEnd: 3699}

// A PortPair is a development and production port assigned to one project.
type PortPair struct {
	Project string `json:"project"`
	Dev     int    `json:"devPort"`
	Prod    int    `json:"prodPort"`
	Created int64  `json:"created,omitempty"`
}

var (
	ErrNoFreePorts    = errors.New("no free ports available")
	ErrInvalidProject = errors.New("invalid project name")
	ErrProjectExists  = errors.New("project already has ports allocated")
)

// ValidProject reports whether name is usable as a project name.
func ValidProject(name string) bool {
	return name != "" && !strings.HasPrefix(name, "_") && !strings.ContainsAny(name, "/.")
}

// PortFree reports whether port can currently be bound on the loopback
// interface.
func PortFree(port int) bool {
	lst, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	lst.Close()
	return true
}

// SettingsPortRanges returns the port ranges recorded in the first settings
// document of db, with defaults for any that are missing.
func SettingsPortRanges(db *sddb.DB) PortRanges {
	out := DefaultPortRanges
	docs := db.FindAll(sddb.Settings)
	if len(docs) == 0 {
		return out
	}
	doc := docs[0]
	for name, p := range map[string]*int{
		"dev_port_start": &out.DevStart, "dev_port_end": &out.DevEnd,
		"prod_port_start": &out.ProdStart, "prod_port_end": &out.ProdEnd,
	} {
		if v, ok := doc.Int(name); ok {
			*p = int(v)
		}
	}
	return out
}

// SettingsIPBases returns the development and production address prefixes
// recorded in the first settings document of db, with defaults for any that
// are missing.
func SettingsIPBases(db *sddb.DB) (dev, prod string) {
	defaults := sddb.DefaultSettings()
	dev, _ = defaults.Str("dev_ip_base")
	prod, _ = defaults.Str("prod_ip_base")
	if docs := db.FindAll(sddb.Settings); len(docs) != 0 {
		if v, ok := docs[0].Str("dev_ip_base"); ok {
			dev = v
		}
		if v, ok := docs[0].Str("prod_ip_base"); ok {
			prod = v
		}
	}
	return dev, prod
}

// AssignedPorts returns the set of ports recorded in the ports collection.
func AssignedPorts(db *sddb.DB) map[int]bool {
	used := make(map[int]bool)
	for _, doc := range db.FindAll(sddb.Ports) {
		for _, name := range []string{"dev_port", "prod_port"} {
			if v, ok := doc.Int(name); ok && v >= 0 && v <= 65535 {
				used[int(v)] = true
			}
		}
	}
	return used
}

// FindFreePortPair returns the first development port in r whose production
// counterpart (at the same offset into the production range) is also in
// range, where neither port is recorded in db or reported busy by isFree.
// If isFree is nil, PortFree is used.
func FindFreePortPair(db *sddb.DB, r PortRanges, isFree func(int) bool) (dev, prod int, _ error) {
	if r.DevStart > r.DevEnd || r.ProdStart > r.ProdEnd {
		return 0, 0, fmt.Errorf("invalid port ranges %+v", r)
	}
	if isFree == nil {
		isFree = PortFree
	}
	delta := r.ProdStart - r.DevStart
	used := AssignedPorts(db)
	for dev := r.DevStart; dev <= r.DevEnd; dev++ {
		prod := dev + delta
		if prod < r.ProdStart || prod > r.ProdEnd || used[dev] || used[prod] {
			continue
		}
		if isFree(dev) && isFree(prod) {
			return dev, prod, nil
		}
	}
	return 0, 0, ErrNoFreePorts
}

// AllocatePorts finds a free port pair for project using the ranges from the
// settings of db, and records the assignment in the ports collection.
func AllocatePorts(db *sddb.DB, project string, isFree func(int) bool) (PortPair, error) {
	if !ValidProject(project) {
		return PortPair{}, fmt.Errorf("%w: %q", ErrInvalidProject, project)
	}
	if _, ok := db.FindBy(sddb.Ports, "project", project); ok {
		return PortPair{}, fmt.Errorf("%w: %q", ErrProjectExists, project)
	}
	dev, prod, err := FindFreePortPair(db, SettingsPortRanges(db), isFree)
	if err != nil {
		return PortPair{}, err
	}
	id, ok := db.Insert(sddb.Ports, sddb.Document{
		"project":   sdcodec.String(project),
		"dev_port":  sdcodec.Int(dev),
		"prod_port": sdcodec.Int(prod),
	})
	if !ok {
		return PortPair{}, errors.New("failed to record port allocation")
	}
	doc, _ := db.FindOne(sddb.Ports, id)
	return portPair(doc), nil
}

// ListPorts returns the port pairs recorded in db, ordered by development
// port.
func ListPorts(db *sddb.DB) []PortPair {
	var out []PortPair
	for _, doc := range db.FindAll(sddb.Ports) {
		out = append(out, portPair(doc))
	}
	slices.SortFunc(out, func(a, b PortPair) int { return cmp.Compare(a.Dev, b.Dev) })
	return out
}

func portPair(doc sddb.Document) PortPair {
	var pp PortPair
	pp.Project, _ = doc.Str("project")
	if v, ok := doc.Int("dev_port"); ok {
		pp.Dev = int(v)
	}
	if v, ok := doc.Int("prod_port"); ok {
		pp.Prod = int(v)
	}
	pp.Created, _ = doc.Int(sddb.FieldCreated)
	return pp
}

// IPFromPort returns the address formed by appending a host octet derived
// from port to the base prefix (for example "10.35.0."). The octet is one
// more than the port's offset within its hundred; offsets of zero and
// octets above 254 have no address.
func IPFromPort(base string, port int) (string, bool) {
	offset := port % 100
	octet := offset + 1
	if offset == 0 || octet > 254 {
		return "", false
	}
	return base + strconv.Itoa(octet), true
}
