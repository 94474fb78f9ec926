// Package rowkey builds composite lookup keys from row field values.
//
// A key is the tab-joined tuple of the values in one key-group. The tab
// separator keeps distinct tuples distinct: a plain concatenation would make
// ["aa","bb","cc"] and ["aab","bcc"] collide. The same key function is applied
// to import rows and to fetched store records, so batched query results can be
// correlated back to the rows that produced them.
package rowkey

import "strings"

// Separator joins the values of a composite key. Tab is not expected to
// survive cell trimming, so it cannot appear inside a value.
const Separator = "\t"

// Join serializes an ordered tuple of values into one composite key.
func Join(values []string) string {
	return strings.Join(values, Separator)
}

// Values extracts the named fields from a row in order. The second return is
// false if any field is missing or empty: a partial key asserts nothing and
// exempts the row from whatever check the key feeds.
func Values(fields map[string]string, names []string) ([]string, bool) {
	values := make([]string, 0, len(names))
	for _, name := range names {
		v, ok := fields[name]
		if !ok || v == "" {
			return nil, false
		}
		values = append(values, v)
	}
	return values, true
}
