package jail

// CopyMode selects which subtrees of a donor tree are skipped while
// populating the jail. It mirrors the three modes from spec.md §4.1: the
// system template can be linked in full, or with /usr excluded because a
// bind mount already covers it; the engine template always excludes the
// large, session-irrelevant subtrees (wizards, SDK, gallery, ...).
type CopyMode int

const (
	// CopyAll links every subtree of the donor tree.
	CopyAll CopyMode = iota
	// CopyLO links the engine template, excluding subtrees no rendering
	// session ever touches.
	CopyLO
	// CopyNoUsr links the system template except /usr, which is expected
	// to already be present via a bind mount.
	CopyNoUsr
)

// loExclusions are engine-template subtrees (relative to the template
// root) that a headless rendering session never needs.
var loExclusions = map[string]bool{
	"program/wizards":   true,
	"sdk":                true,
	"share/basic":        true,
	"share/gallery":      true,
	"share/Scripts":      true,
	"share/template":     true,
	"share/config/wizard": true,
}

// shouldSkipDir reports whether the directory at rel (relative to the
// donor tree root, no leading slash) should be excluded from the jail
// under this copy mode.
func (m CopyMode) shouldSkipDir(rel string) bool {
	switch m {
	case CopyNoUsr:
		return rel == "usr"
	case CopyLO:
		return loExclusions[rel]
	default: // CopyAll
		return false
	}
}
