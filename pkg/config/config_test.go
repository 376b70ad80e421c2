package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vimana-cloud/vimanad/pkg/config"
)

var _ = Describe("Config", func() {
	var sut *config.Config

	BeforeEach(func() {
		var err error
		sut, err = config.DefaultConfig()
		Expect(err).NotTo(HaveOccurred())
	})

	It("has a valid default configuration", func() {
		Expect(sut.Validate()).NotTo(HaveOccurred())
	})

	It("rejects an empty incoming socket path", func() {
		sut.Incoming = ""
		Expect(sut.Validate()).To(HaveOccurred())
	})

	It("rejects an empty image store path", func() {
		sut.ImageStore = ""
		Expect(sut.Validate()).To(HaveOccurred())
	})

	It("rejects an unknown log level", func() {
		sut.LogLevel = "verbose"
		Expect(sut.Validate()).To(HaveOccurred())
	})

	It("loads overrides from a TOML file without clobbering unset fields", func() {
		path := filepath.Join(t.MustTempDir("config"), "vimanad.toml")
		content := "incoming = \"/tmp/other.sock\"\nlog_level = \"debug\"\n"
		Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())

		Expect(sut.LoadFile(path)).To(Succeed())
		Expect(sut.Incoming).To(Equal("/tmp/other.sock"))
		Expect(sut.LogLevel).To(Equal("debug"))
		// Untouched by the file, still the default.
		Expect(sut.ImageStore).To(Equal("/var/lib/vimanad/images"))
	})

	It("errors on a missing file", func() {
		Expect(sut.LoadFile("/nonexistent/path.toml")).To(HaveOccurred())
	})
})
