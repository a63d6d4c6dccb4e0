package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"resumate/internal/appstate"
	"resumate/internal/projects"
)

var (
	ErrInvalidPayload   = errors.New("invalid snapshot payload")
	ErrMissingNamespace = errors.New("snapshot is missing a required namespace")
)

// RequiredNamespaces must both be present for an import to proceed.
var RequiredNamespaces = []string{projects.Namespace, appstate.Namespace}

// Entry is one stored record. A null or absent key asks the store to assign one.
type Entry struct {
	Key   json.RawMessage `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Payload maps namespace -> collection -> entries. It is the export file
// format and the peer transfer message.
type Payload map[string]map[string][]Entry

// Decode parses and validates a snapshot document.
func Decode(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the required namespaces and that every entry has a value.
func (p Payload) Validate() error {
	for _, ns := range RequiredNamespaces {
		if _, ok := p[ns]; !ok || p[ns] == nil {
			return fmt.Errorf("%w: %s", ErrMissingNamespace, ns)
		}
	}
	for ns, colls := range p {
		for coll, entries := range colls {
			for i, e := range entries {
				if len(bytes.TrimSpace(e.Value)) == 0 {
					return fmt.Errorf("%w: %s/%s entry %d has no value", ErrInvalidPayload, ns, coll, i)
				}
			}
		}
	}
	return nil
}

// Encode renders p, indented for files or compact for transfer.
func (p Payload) Encode(indent bool) ([]byte, error) {
	if indent {
		return json.MarshalIndent(p, "", "  ")
	}
	return json.Marshal(p)
}

// Count returns the number of entries across all collections.
func (p Payload) Count() int {
	n := 0
	for _, colls := range p {
		for _, entries := range colls {
			n += len(entries)
		}
	}
	return n
}

func hasKey(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
