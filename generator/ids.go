package generator

import (
	"strconv"

	"github.com/timzifer/modbustcp/modbustcp"
	"github.com/timzifer/modbustcp/schema"
)

// idRegistry tracks every ID of a document. Explicit IDs are claimed first so
// that generated IDs never shadow one declared further down.
type idRegistry struct {
	owners map[string]string
}

func newIDRegistry() *idRegistry {
	return &idRegistry{owners: make(map[string]string)}
}

func (r *idRegistry) claim(path schema.Path, line int, id string) error {
	if id == "" {
		return nil
	}
	if owner, ok := r.owners[id]; ok {
		return schema.Errorf(path.Key(modbustcp.KeyID), line, "ID %s redefined, first declared at %s", id, owner)
	}
	r.owners[id] = path.String()
	return nil
}

// generate returns base, or base_2, base_3 and so on when base is taken.
func (r *idRegistry) generate(base string) string {
	id := base
	for n := 2; ; n++ {
		if _, taken := r.owners[id]; !taken {
			break
		}
		id = base + "_" + strconv.Itoa(n)
	}
	r.owners[id] = "generated"
	return id
}
