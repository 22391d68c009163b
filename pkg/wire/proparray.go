package wire

import "strings"

// PropArray is an ordered collection of properties, unique by property id.
// The zero value is an empty array ready to use. Copies share storage;
// Clone before mutating a copy that other code still reads.
type PropArray struct {
	props []Property
}

// NewPropArray builds an array from props. Later entries replace earlier
// ones with the same id.
func NewPropArray(props ...Property) PropArray {
	var a PropArray
	for _, p := range props {
		a.Set(p)
	}
	return a
}

// Len returns the number of properties.
func (a PropArray) Len() int { return len(a.props) }

// IsEmpty reports whether the array holds no properties.
func (a PropArray) IsEmpty() bool { return len(a.props) == 0 }

// At returns the i-th property.
func (a PropArray) At(i int) Property { return a.props[i] }

// Props returns a copy of the properties in order.
func (a PropArray) Props() []Property {
	out := make([]Property, len(a.props))
	copy(out, a.props)
	return out
}

func (a PropArray) index(t Tag) int {
	t = NormalizeTag(uint32(t))
	for i, p := range a.props {
		if p.Tag.SameID(t) {
			return i
		}
	}
	return -1
}

// Set stores p, replacing any property with the same id.
func (a *PropArray) Set(p Property) {
	if i := a.index(p.Tag); i >= 0 {
		a.props[i] = p
		return
	}
	a.props = append(a.props, p)
}

// Get returns the property with t's id, or NotFound.
// Check IsError on the result before reading the value.
func (a PropArray) Get(t Tag) Property {
	if i := a.index(t); i >= 0 {
		return a.props[i]
	}
	return NotFound
}

// Lookup returns the property with t's id and whether it exists.
func (a PropArray) Lookup(t Tag) (Property, bool) {
	if i := a.index(t); i >= 0 {
		return a.props[i], true
	}
	return Property{}, false
}

// Has reports whether a property with t's id exists, regardless of type.
// Like every lookup, t may be a full tag or a bare id.
func (a PropArray) Has(t Tag) bool { return a.index(t) >= 0 }

// Remove deletes the property with t's id and reports whether it existed.
func (a *PropArray) Remove(t Tag) bool {
	i := a.index(t)
	if i < 0 {
		return false
	}
	a.props = append(a.props[:i], a.props[i+1:]...)
	return true
}

// Clear removes all properties.
func (a *PropArray) Clear() { a.props = nil }

// Merge sets every property of o into a.
func (a *PropArray) Merge(o PropArray) {
	for _, p := range o.props {
		a.Set(p)
	}
}

// Clone returns an independent copy.
func (a PropArray) Clone() PropArray {
	return PropArray{props: a.Props()}
}

// Tags returns the tags in order.
func (a PropArray) Tags() TagArray {
	out := make(TagArray, len(a.props))
	for i, p := range a.props {
		out[i] = p.Tag
	}
	return out
}

// HasErrors reports whether any property is an error property.
func (a PropArray) HasErrors() bool {
	for _, p := range a.props {
		if p.IsError() {
			return true
		}
	}
	return false
}

// Equal compares both arrays element by element in order.
func (a PropArray) Equal(o PropArray) bool {
	if len(a.props) != len(o.props) {
		return false
	}
	for i := range a.props {
		if !a.props[i].Equal(o.props[i]) {
			return false
		}
	}
	return true
}

// String formats the array for logs.
func (a PropArray) String() string {
	parts := make([]string, len(a.props))
	for i, p := range a.props {
		parts[i] = p.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// TagArray is an ordered list of tags, used for column sets.
type TagArray []Tag

// Has reports whether a tag with t's id is present.
func (ta TagArray) Has(t Tag) bool {
	t = NormalizeTag(uint32(t))
	for _, x := range ta {
		if x.SameID(t) {
			return true
		}
	}
	return false
}

// Index returns the position of t's id, or -1.
func (ta TagArray) Index(t Tag) int {
	t = NormalizeTag(uint32(t))
	for i, x := range ta {
		if x.SameID(t) {
			return i
		}
	}
	return -1
}
