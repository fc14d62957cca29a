package pdf

import "golang.org/x/text/language"

// DocumentLanguage returns the document's /Lang catalog entry, parsed as
// a BCP-47 language tag. It reports false if /Lang is absent or is not a
// tag golang.org/x/text/language recognizes -- grounded on the way the
// teacher's font subpackages lean on golang.org/x/text/language to
// decode BCP-47 struct tags, generalized here to the one BCP-47 field
// the core object model itself defines.
func (d *Document) DocumentLanguage() (language.Tag, bool) {
	root, err := d.GetRoot()
	if err != nil {
		return language.Und, false
	}
	h, err := root.DictGet("Lang")
	if err != nil || h.IsNull() {
		return language.Und, false
	}
	s, err := h.ToString()
	if err != nil || s == "" {
		return language.Und, false
	}
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und, false
	}
	return tag, true
}

// SetDocumentLanguage sets the catalog's /Lang entry from tag.
func (d *Document) SetDocumentLanguage(tag language.Tag) error {
	root, err := d.GetRoot()
	if err != nil {
		return err
	}
	return root.DictSet("Lang", NewDirect(String(tag.String())))
}
