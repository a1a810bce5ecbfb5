//go:build integration

package integration

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/reaper/internal/domain"
	"github.com/eliteGoblin/focusd/reaper/internal/infra"
	"github.com/eliteGoblin/focusd/reaper/internal/usecase"
	"github.com/eliteGoblin/focusd/reaper/test/fixtures"
)

var _ = Describe("Terminator with real signals", func() {
	var (
		controller *infra.SignalController
		terminator *usecase.Terminator
		workload   *fixtures.Workload
	)

	BeforeEach(func() {
		controller = infra.NewSignalController()
		terminator = usecase.NewTerminator(controller, zap.NewNop(),
			usecase.WithPollInterval(20*time.Millisecond))
	})

	AfterEach(func() {
		if workload != nil {
			workload.Stop()
			workload = nil
		}
	})

	Context("when the process honors SIGTERM", func() {
		It("should exit within the grace period without SIGKILL", func() {
			var err error
			workload, err = fixtures.StartSleeper()
			Expect(err).NotTo(HaveOccurred())

			start := time.Now()
			result := terminator.Terminate(context.Background(), workload.PID(), 5)

			Expect(result).To(Equal(domain.ResultSuccess))
			Expect(time.Since(start)).To(BeNumerically("<", 5*time.Second))
			Expect(workload.WaitExit(time.Second)).To(BeTrue())
		})
	})

	Context("when the process ignores SIGTERM", func() {
		It("should escalate to SIGKILL after the grace period", func() {
			var err error
			workload, err = fixtures.StartStubborn()
			Expect(err).NotTo(HaveOccurred())

			start := time.Now()
			result := terminator.Terminate(context.Background(), workload.PID(), 1)

			Expect(result).To(Equal(domain.ResultSuccess))
			Expect(time.Since(start)).To(BeNumerically(">=", 900*time.Millisecond))
			Expect(workload.WaitExit(time.Second)).To(BeTrue())
		})

		It("should escalate immediately when cancelled during the grace period", func() {
			var err error
			workload, err = fixtures.StartStubborn()
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			time.AfterFunc(100*time.Millisecond, cancel)

			start := time.Now()
			result := terminator.Terminate(ctx, workload.PID(), 30)

			Expect(result).To(Equal(domain.ResultSuccess))
			Expect(time.Since(start)).To(BeNumerically("<", 5*time.Second))
		})
	})

	Context("when the process is already gone", func() {
		It("should report already dead", func() {
			var err error
			workload, err = fixtures.StartSleeper()
			Expect(err).NotTo(HaveOccurred())
			pid := workload.PID()
			workload.Stop()

			Expect(terminator.Terminate(context.Background(), pid, 1)).To(Equal(domain.ResultAlreadyDead))
		})
	})

	Context("in dry-run mode", func() {
		It("should leave the process running", func() {
			var err error
			workload, err = fixtures.StartSleeper()
			Expect(err).NotTo(HaveOccurred())

			Expect(terminator.Simulate(context.Background(), workload.PID(), 1)).To(Equal(domain.ResultSuccess))
			Consistently(workload.Exited, 300*time.Millisecond, 50*time.Millisecond).Should(BeFalse())
		})
	})
})
