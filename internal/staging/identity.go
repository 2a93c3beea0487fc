package staging

import "strconv"

// Identity tells a persisted record (the backend assigned id) apart from one
// created in this session. The zero value is New.
type Identity struct {
	id        int
	persisted bool
}

func Persisted(id int) Identity { return Identity{id: id, persisted: true} }

func New() Identity { return Identity{} }

// ID returns the backend id and whether there is one.
func (i Identity) ID() (int, bool) { return i.id, i.persisted }

func (i Identity) IsNew() bool { return !i.persisted }

// WireValue is the multipart id marker: the decimal id, or "" for new records.
func (i Identity) WireValue() string {
	if !i.persisted {
		return ""
	}
	return strconv.Itoa(i.id)
}

func (i Identity) String() string {
	if !i.persisted {
		return "new"
	}
	return "#" + strconv.Itoa(i.id)
}
