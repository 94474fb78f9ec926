// Package dict provides closed key/value lookups used to translate values a
// person typed into a sheet ("Female", "Active") into the codes the store
// keeps ("2", "1"). A dictionary is configuration: built once per import
// definition and read-only while rows are processed.
package dict

// Dictionary maps entered labels to stored codes and preserves the order in
// which entries were declared, so error messages and generated templates list
// choices the way the definition author wrote them.
type Dictionary struct {
	keys   []string
	values map[string]string
}

// New builds a dictionary from ordered label/code pairs. Pairs must have an
// even length; a trailing unpaired label is ignored.
func New(pairs ...string) *Dictionary {
	d := &Dictionary{values: make(map[string]string, len(pairs)/2)}
	for i := 0; i+1 < len(pairs); i += 2 {
		d.Set(pairs[i], pairs[i+1])
	}
	return d
}

// FromMap builds a dictionary from a map plus an explicit key order.
// Keys absent from the map are skipped.
func FromMap(order []string, m map[string]string) *Dictionary {
	d := &Dictionary{values: make(map[string]string, len(m))}
	for _, k := range order {
		if v, ok := m[k]; ok {
			d.Set(k, v)
		}
	}
	return d
}

// Set adds or replaces an entry. New keys append to the declared order.
func (d *Dictionary) Set(key, value string) {
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

// Has reports whether the entered label is a known entry.
func (d *Dictionary) Has(key string) bool {
	_, ok := d.values[key]
	return ok
}

// Get returns the stored code for an entered label.
func (d *Dictionary) Get(key string) (string, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Keys returns the entered labels in declaration order.
func (d *Dictionary) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Values returns the stored codes in declaration order.
func (d *Dictionary) Values() []string {
	out := make([]string, 0, len(d.keys))
	for _, k := range d.keys {
		out = append(out, d.values[k])
	}
	return out
}

// All returns the full mapping as key order plus map. The map is a copy.
func (d *Dictionary) All() ([]string, map[string]string) {
	m := make(map[string]string, len(d.values))
	for k, v := range d.values {
		m[k] = v
	}
	return d.Keys(), m
}

// Len returns the number of entries.
func (d *Dictionary) Len() int {
	return len(d.keys)
}
