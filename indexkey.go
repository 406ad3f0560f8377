package chronos

import "strings"

// Index keys have the shape "label=value" plus a NUL sentinel so no
// stored key is a strict prefix of another. Prefix scans over all
// values of a label use "label=" without the sentinel.
const indexKeySentinel = "\x00"

func keyForLabelValue(name, value string) string {
	var b strings.Builder
	b.Grow(len(name) + len(value) + 2)
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(value)
	b.WriteString(indexKeySentinel)
	return b.String()
}

func keyPrefixForLabel(name string) string {
	return name + "="
}

// splitIndexKey breaks a stored key back into label name and value.
func splitIndexKey(key string) (name, value string, ok bool) {
	key = strings.TrimSuffix(key, indexKeySentinel)
	i := strings.IndexByte(key, '=')
	if i < 0 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

// indexKeyValue extracts the value part of a scanned key given the
// length of the "label=" prefix it was scanned under.
func indexKeyValue(key string, prefixLen int) string {
	return strings.TrimSuffix(key[prefixLen:], indexKeySentinel)
}
