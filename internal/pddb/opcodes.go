package pddb

import (
	"fmt"

	"github.com/danmuck/pddbwire/internal/transport"
	"github.com/danmuck/pddbwire/internal/wire"
)

// Family names one request/response pair and the tags that mark each
// direction in the buffer.
type Family struct {
	Name     string
	Request  wire.Tag
	Response wire.Tag
}

var (
	FamilyListBases = Family{Name: "list_bases", Request: wire.MustTag("BLST"), Response: wire.MustTag("blst")}
	FamilyListDicts = Family{Name: "list_dicts", Request: wire.MustTag("DLST"), Response: wire.MustTag("dlst")}
	FamilyListKeys  = Family{Name: "list_keys", Request: wire.MustTag("KLST"), Response: wire.MustTag("klst")}
	FamilyListPath  = Family{Name: "list_path", Request: wire.MustTag("PLST"), Response: wire.MustTag("plst")}
	FamilyOpen      = Family{Name: "open", Request: wire.MustTag("KOPN"), Response: wire.MustTag("kopn")}
	FamilyRead      = Family{Name: "read", Request: wire.MustTag("KRED"), Response: wire.MustTag("kred")}
	FamilyWrite     = Family{Name: "write", Request: wire.MustTag("KWRT"), Response: wire.MustTag("kwrt")}
	FamilyFlush     = Family{Name: "flush", Request: wire.MustTag("KFLS"), Response: wire.MustTag("kfls")}
	FamilyRelease   = Family{Name: "release", Request: wire.MustTag("KREL"), Response: wire.MustTag("krel")}
)

// Opcodes is the service's numeric operation table. The numbers are owned
// by the server. Only ListBases and ListDicts in DefaultOpcodes come from a
// known server table; the rest are placeholders to confirm against the
// service and override through configuration.
type Opcodes struct {
	ListBases transport.Opcode `toml:"list_bases"`
	ListDicts transport.Opcode `toml:"list_dicts"`
	ListKeys  transport.Opcode `toml:"list_keys"`
	ListPath  transport.Opcode `toml:"list_path"`
	Open      transport.Opcode `toml:"open"`
	Read      transport.Opcode `toml:"read"`
	Write     transport.Opcode `toml:"write"`
	Flush     transport.Opcode `toml:"flush"`
	Release   transport.Opcode `toml:"release"`
}

func DefaultOpcodes() Opcodes {
	return Opcodes{
		ListBases: 26,
		ListDicts: 28,
		ListKeys:  29,
		ListPath:  30,
		Open:      31,
		Read:      32,
		Write:     33,
		Flush:     34,
		Release:   35,
	}
}

func (o Opcodes) table() []struct {
	op  transport.Opcode
	fam Family
} {
	return []struct {
		op  transport.Opcode
		fam Family
	}{
		{o.ListBases, FamilyListBases},
		{o.ListDicts, FamilyListDicts},
		{o.ListKeys, FamilyListKeys},
		{o.ListPath, FamilyListPath},
		{o.Open, FamilyOpen},
		{o.Read, FamilyRead},
		{o.Write, FamilyWrite},
		{o.Flush, FamilyFlush},
		{o.Release, FamilyRelease},
	}
}

// Family resolves an opcode to its family.
func (o Opcodes) Family(op transport.Opcode) (Family, bool) {
	for _, e := range o.table() {
		if e.op == op {
			return e.fam, true
		}
	}
	return Family{}, false
}

// Validate rejects tables that map two families to one opcode.
func (o Opcodes) Validate() error {
	seen := make(map[transport.Opcode]string)
	for _, e := range o.table() {
		if prev, ok := seen[e.op]; ok {
			return fmt.Errorf("%w: opcode %d used by %s and %s", ErrInvalidInput, e.op, prev, e.fam.Name)
		}
		seen[e.op] = e.fam.Name
	}
	return nil
}
