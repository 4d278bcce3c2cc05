package index

import (
	"encoding/binary"
	"fmt"
)

// Posting is the inverted-index entry for one (field, term, doc) triple.
// Positions are dense token positions from the field's analyzer; term
// frequency is derived from them.
type Posting struct {
	DocID     string   `json:"doc_id"`
	Frequency int      `json:"frequency"`
	Positions []uint32 `json:"positions"`
}

// TF returns the term frequency of the posting.
func (p Posting) TF() int {
	if len(p.Positions) > 0 {
		return len(p.Positions)
	}
	return p.Frequency
}

// PackPositions encodes positions as a tightly packed little-endian
// u32 array, the on-disk blob format of the postings table.
func PackPositions(positions []uint32) []byte {
	if len(positions) == 0 {
		return nil
	}
	blob := make([]byte, 4*len(positions))
	for i, pos := range positions {
		binary.LittleEndian.PutUint32(blob[i*4:], pos)
	}
	return blob
}

// UnpackPositions decodes a packed little-endian u32 blob.
func UnpackPositions(blob []byte) ([]uint32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("positions blob length %d is not a multiple of 4", len(blob))
	}
	if len(blob) == 0 {
		return nil, nil
	}
	positions := make([]uint32, len(blob)/4)
	for i := range positions {
		positions[i] = binary.LittleEndian.Uint32(blob[i*4:])
	}
	return positions, nil
}

// ToDict converts a posting to a plain map, the shape stored in
// documents-table JSON and used by diagnostics.
func (p Posting) ToDict() map[string]any {
	return map[string]any{
		"doc_id":    p.DocID,
		"frequency": p.TF(),
		"positions": p.Positions,
	}
}

// PostingFromDict is the inverse of ToDict.
func PostingFromDict(d map[string]any) (Posting, error) {
	p := Posting{}
	id, ok := d["doc_id"].(string)
	if !ok {
		return p, fmt.Errorf("posting dict missing doc_id")
	}
	p.DocID = id
	switch f := d["frequency"].(type) {
	case int:
		p.Frequency = f
	case float64:
		p.Frequency = int(f)
	}
	switch raw := d["positions"].(type) {
	case []uint32:
		p.Positions = raw
	case []any:
		for _, v := range raw {
			switch n := v.(type) {
			case float64:
				p.Positions = append(p.Positions, uint32(n))
			case int:
				p.Positions = append(p.Positions, uint32(n))
			}
		}
	}
	return p, nil
}
