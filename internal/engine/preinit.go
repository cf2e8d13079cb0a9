package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ebitengine/purego"
)

// candidateLibraries are the two shared objects spec.md §4.2 names, tried in
// preference order; the merged variant bundles every module into one object
// and is used whenever the installation provides it.
var candidateLibraries = []string{
	"libmergedlo.so",
	"libsofficeapp.so",
}

// lokPreinit is the C signature `int lok_preinit(const char*, const char*)`.
type lokPreinitFunc func(installPath, userProfileURL string) int32

// LibraryPath returns the first of candidateLibraries that exists under
// loTemplate/program. Preinit uses it to locate the engine shared object;
// NewOffice takes the resulting path as its argument.
func LibraryPath(loTemplate string) (string, error) {
	programDir := filepath.Join(loTemplate, "program")
	for _, name := range candidateLibraries {
		candidate := filepath.Join(programDir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no candidate engine library found under %s", programDir)
}

// Preinit locates one of candidateLibraries under loTemplate/program, loads
// it, and invokes its lok_preinit hook exactly once, before the process
// forks into per-document workers. A non-zero return, a missing symbol, or
// a failed dlopen is fatal — the engine cannot be used at all.
func Preinit(loTemplate string) error {
	programDir := filepath.Join(loTemplate, "program")

	path, err := LibraryPath(loTemplate)
	if err != nil {
		return fmt.Errorf("engine: preinit: %w", err)
	}

	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return fmt.Errorf("engine: preinit dlopen: %w", err)
	}

	var preinit lokPreinitFunc
	purego.RegisterLibFunc(&preinit, handle, "lok_preinit")

	if rc := preinit(programDir, "file:///user"); rc != 0 {
		return fmt.Errorf("engine: lok_preinit(%s) returned %d", path, rc)
	}
	return nil
}
