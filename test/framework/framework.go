// Package framework provides the shared ginkgo test harness used across the
// daemon's packages: temp-file bookkeeping and a captured logrus hook so
// specs can assert on emitted log lines.
package framework

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/onsi/ginkgo/v2"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// NilFunc is a no-op hook, handy when a suite doesn't need setup/teardown
// behavior around each spec.
var NilFunc = func() {}

// RunFrameworkSpecs runs every registered ginkgo spec for a suite named
// description, the common entry point every package's TestXxx function
// delegates to.
func RunFrameworkSpecs(t *testing.T, description string) {
	ginkgo.RunSpecs(t, description)
}

// TestFramework bundles per-suite state: a scratch directory for temp
// files, and a hook that records every log entry emitted during a spec.
type TestFramework struct {
	before  func()
	after   func()
	tempDir string
	LogHook *test.Hook
}

// NewTestFramework builds a framework holding before/after hooks. It does
// not register them with ginkgo; RunBefore and RunAfter invoke them when a
// suite calls those from its own BeforeEach/AfterEach.
func NewTestFramework(before, after func()) *TestFramework {
	return &TestFramework{before: before, after: after}
}

// Setup creates the suite's scratch directory and installs the log capture
// hook. Call once from BeforeSuite.
func (t *TestFramework) Setup() {
	dir, err := os.MkdirTemp("", "vimanad-test-")
	if err != nil {
		panic(err)
	}
	t.tempDir = dir

	logrus.SetLevel(logrus.DebugLevel)
	hook := test.NewGlobal()
	t.LogHook = hook
}

// Teardown removes the scratch directory. Call once from AfterSuite.
func (t *TestFramework) Teardown() {
	if t.tempDir != "" {
		os.RemoveAll(t.tempDir)
	}
}

// RunBefore invokes the suite's before hook, if any. Intended for use from
// a ginkgo BeforeEach.
func (t *TestFramework) RunBefore() {
	if t.before != nil {
		t.before()
	}
}

// RunAfter invokes the suite's after hook, if any. Intended for use from a
// ginkgo AfterEach.
func (t *TestFramework) RunAfter() {
	if t.after != nil {
		t.after()
	}
}

// MustTempDir creates a fresh subdirectory named prefix under the suite's
// scratch directory, panicking on failure.
func (t *TestFramework) MustTempDir(prefix string) string {
	dir, err := os.MkdirTemp(t.tempDir, prefix)
	if err != nil {
		panic(err)
	}
	return dir
}

// MustTempFile creates a fresh, empty file named prefix under the suite's
// scratch directory, panicking on failure, and returns its path.
func (t *TestFramework) MustTempFile(prefix string) string {
	f, err := os.CreateTemp(t.tempDir, prefix)
	if err != nil {
		panic(err)
	}
	defer f.Close()
	return f.Name()
}

// MustTempFileWithContent is like MustTempFile but writes content to the
// file before returning its path.
func (t *TestFramework) MustTempFileWithContent(prefix, content string) string {
	path := t.MustTempFile(prefix)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		panic(err)
	}
	return path
}

// MustJoin joins elem onto the suite's scratch directory.
func (t *TestFramework) MustJoin(elem ...string) string {
	return filepath.Join(append([]string{t.tempDir}, elem...)...)
}

// Describe is a thin convenience wrapper over ginkgo.Describe so specs can
// write t.Describe(...) instead of importing ginkgo separately for just
// that call.
func (t *TestFramework) Describe(text string, body func()) bool {
	return ginkgo.Describe(text, body)
}

// FmtSpanID builds a short, readable label for parallel spec debugging.
func FmtSpanID(i int) string {
	return fmt.Sprintf("span-%d", i)
}
