package resume

import "strings"

// DefaultPrefix namespaces every key written by a Resumer.
const DefaultPrefix = "domresume"

// Keys builds the storage keys under one prefix.
type Keys struct {
	Prefix string
}

// Page returns the key holding the state of the page at path.
func (k Keys) Page(path string) string {
	return k.PagePrefix() + path
}

// PagePrefix returns the common prefix of every page key.
func (k Keys) PagePrefix() string {
	return k.prefix() + ":page-"
}

// AutoResume returns the key of the auto-resume flag.
func (k Keys) AutoResume() string {
	return k.prefix() + ":auto-resume"
}

// PathOf returns the page path of a page key.
func (k Keys) PathOf(key string) (string, bool) {
	return strings.CutPrefix(key, k.PagePrefix())
}

func (k Keys) prefix() string {
	if k.Prefix == "" {
		return DefaultPrefix
	}
	return k.Prefix
}
