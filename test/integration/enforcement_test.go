//go:build integration

package integration

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/reaper/internal/daemon"
	"github.com/eliteGoblin/focusd/reaper/internal/domain"
	"github.com/eliteGoblin/focusd/reaper/internal/infra"
	"github.com/eliteGoblin/focusd/reaper/internal/policy"
	"github.com/eliteGoblin/focusd/reaper/internal/usecase"
	"github.com/eliteGoblin/focusd/reaper/test/fixtures"
)

func markerRule(w *fixtures.Workload) domain.DetectionRule {
	return domain.DetectionRule{
		Name:           "fixture-" + w.Marker,
		Priority:       domain.PriorityHigh,
		CmdlinePattern: w.CmdlinePattern(),
		Enabled:        true,
	}
}

func newEnforcer(cfg domain.Config) *usecase.Enforcer {
	logger := zap.NewNop()
	return usecase.NewEnforcer(
		infra.NewProcessTable(logger),
		policy.NewRuleStore(cfg.Rules...),
		usecase.NewTerminator(infra.NewSignalController(), logger,
			usecase.WithPollInterval(20*time.Millisecond)),
		cfg,
		logger,
	)
}

var _ = Describe("Enforcer against the live process table", func() {
	var workload *fixtures.Workload

	BeforeEach(func() {
		var err error
		workload, err = fixtures.StartSleeper()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		workload.Stop()
	})

	It("should flag and terminate only the matching process", func() {
		cfg := domain.DefaultConfig()
		cfg.GracePeriodSecs = 1
		cfg.Rules = []domain.DetectionRule{markerRule(workload)}

		result := newEnforcer(cfg).RunTick(context.Background(), nil)

		Expect(result.Skipped).To(BeFalse())
		Expect(result.Scanned).To(BeNumerically(">", 1))
		Expect(result.Records).To(HaveLen(1))
		Expect(result.Records[0].PID).To(Equal(workload.PID()))
		Expect(result.Records[0].Result).To(Equal(domain.ResultSuccess))
		Expect(workload.WaitExit(time.Second)).To(BeTrue())
	})

	It("should not signal anything in dry-run mode", func() {
		cfg := domain.DefaultConfig()
		cfg.DryRun = true
		cfg.Rules = []domain.DetectionRule{markerRule(workload)}

		result := newEnforcer(cfg).RunTick(context.Background(), nil)

		Expect(result.Records).To(HaveLen(1))
		Expect(result.Records[0].DryRun).To(BeTrue())
		Expect(workload.Exited()).To(BeFalse())
	})

	It("should record outcomes in the encrypted journal while running as a daemon", func() {
		dataDir := GinkgoT().TempDir()
		key, err := infra.GenerateKey()
		Expect(err).NotTo(HaveOccurred())
		journal, err := infra.NewEncryptedJournal(dataDir, key)
		Expect(err).NotTo(HaveOccurred())
		defer journal.Close()

		cfg := domain.DefaultConfig()
		cfg.GracePeriodSecs = 1
		cfg.Rules = []domain.DetectionRule{markerRule(workload)}

		loopCfg := daemon.DefaultConfig()
		loopCfg.CheckInterval = 100 * time.Millisecond
		reaper := daemon.NewReaper(loopCfg, newEnforcer(cfg), journal, nil,
			domain.Daemon{PID: 1, StartedAt: time.Now(), AppVersion: "test"}, zap.NewNop())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- reaper.Run(ctx) }()

		Eventually(workload.Exited, 5*time.Second, 50*time.Millisecond).Should(BeTrue())
		Eventually(func() ([]domain.TerminationRecord, error) {
			return journal.Recent(10)
		}, 2*time.Second, 50*time.Millisecond).ShouldNot(BeEmpty())

		cancel()
		Eventually(done, 2*time.Second).Should(Receive(MatchError(context.Canceled)))

		records, err := journal.Recent(10)
		Expect(err).NotTo(HaveOccurred())
		Expect(records[len(records)-1].PID).To(Equal(workload.PID()))

		status, err := journal.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status).NotTo(BeNil())
		Expect(status.AppVersion).To(Equal("test"))
	})
})
