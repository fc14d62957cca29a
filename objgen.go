package pdf

import "strconv"

// ObjGen identifies one indirect object within one document: an object
// number together with a generation number. The zero value, (0, 0),
// denotes "no identity" and is used as the sentinel for direct objects.
type ObjGen struct {
	ID  uint32
	Gen uint16
}

// IsIndirect reports whether og identifies an indirect object, i.e.
// whether it is different from the zero ObjGen.
func (og ObjGen) IsIndirect() bool {
	return og != (ObjGen{})
}

func (og ObjGen) String() string {
	s := strconv.FormatUint(uint64(og.ID), 10)
	if og.Gen != 0 {
		s += " " + strconv.FormatUint(uint64(og.Gen), 10)
	}
	return s
}
