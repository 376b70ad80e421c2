//go:build test

package cmdrunner_test

import (
	"context"
	"os/exec"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	runnerMock "github.com/vimana-cloud/vimanad/test/mocks/cmdrunner"
	"github.com/vimana-cloud/vimanad/utils/cmdrunner"
)

var _ = Describe("CommandRunner", func() {
	It("runs a real command by default", func() {
		cmd := cmdrunner.CommandContext(context.Background(), "true")
		Expect(cmd.Run()).To(Succeed())
	})

	It("can be swapped for a mock", func() {
		ctrl := gomock.NewController(GinkgoT())
		mock := runnerMock.NewMockCommandRunner(ctrl)
		restore := cmdrunner.SetMocked(mock)
		defer restore()

		want := exec.Command("false")
		mock.EXPECT().CommandContext(gomock.Any(), "whatever").Return(want)

		got := cmdrunner.CommandContext(context.Background(), "whatever")
		Expect(got).To(BeIdenticalTo(want))
	})
})
