package mail

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mberti/spesa/internal/expense"
)

type stubDirectory struct{}

func (stubDirectory) TZOffsetMinutes(ctx context.Context, userID string) (int, error) {
	return 0, nil
}

func (stubDirectory) DisplayName(ctx context.Context, userID string) (string, error) {
	return "mario", nil
}

// stubExtractor answers with fixed ticket text regardless of the document.
type stubExtractor struct {
	text string
	err  error
}

func (s *stubExtractor) Text(data []byte, contentType string) (string, error) {
	return s.text, s.err
}

// recordingNotifier captures what the ingestor reports back.
type recordingNotifier struct {
	pending  []*expense.PendingExpense
	failures []string
}

func (r *recordingNotifier) PendingAdded(ctx context.Context, channelID string, p *expense.PendingExpense) error {
	r.pending = append(r.pending, p)
	return nil
}

func (r *recordingNotifier) IngestFailed(ctx context.Context, channelID, filename, reason string) error {
	r.failures = append(r.failures, filename)
	return nil
}

var _ = Describe("Ingestor", func() {
	var (
		ctx       context.Context
		service   *expense.Service
		extractor *stubExtractor
		notifier  *recordingNotifier
		ingestor  *Ingestor
	)

	const senderAddress = "mario@example.com"

	BeforeEach(func() {
		ctx = context.Background()
		tmp := GinkgoT().TempDir()

		db, err := expense.NewBoltDB(filepath.Join(tmp, "test.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(db.Close)

		storage, err := expense.NewLocalStorage(filepath.Join(tmp, "proofs"))
		Expect(err).NotTo(HaveOccurred())

		extractor = &stubExtractor{text: "Partenza: MILANO Ore 19:37 - 13/12/2019 Totale: 9.90 €"}
		service = expense.NewService(db, storage, stubDirectory{}, extractor, nil)
		notifier = &recordingNotifier{}
		ingestor = NewIngestor(service, notifier)

		Expect(service.EnsureEmployee(ctx, "U1", "mario", "C1")).To(Succeed())
		Expect(service.RegisterEmail(ctx, "U1", senderAddress)).To(Succeed())
	})

	verifySender := func() {
		Expect(service.VerifyEmail(senderAddress)).To(Succeed())
	}

	It("turns a verified sender's PDF into a pending expense", func() {
		verifySender()

		err := ingestor.Process(ctx, []byte(multipartMessage([]byte("%PDF fake"))))

		Expect(err).NotTo(HaveOccurred())
		Expect(notifier.pending).To(HaveLen(1))
		Expect(notifier.pending[0].EmployeeUserID).To(Equal("U1"))
		Expect(notifier.pending[0].Amount).To(Equal("9.90"))
		Expect(notifier.pending[0].Outcome).To(Equal(expense.OutcomeOpen))
	})

	It("drops mail from an unverified sender", func() {
		err := ingestor.Process(ctx, []byte(multipartMessage([]byte("%PDF fake"))))

		Expect(err).NotTo(HaveOccurred())
		Expect(notifier.pending).To(BeEmpty())
		Expect(notifier.failures).To(BeEmpty())
	})

	It("reports an attachment nothing could read", func() {
		verifySender()
		extractor.text = ""
		extractor.err = errors.New("no text")

		err := ingestor.Process(ctx, []byte(multipartMessage([]byte("%PDF fake"))))

		Expect(err).NotTo(HaveOccurred())
		Expect(notifier.pending).To(BeEmpty())
		Expect(notifier.failures).To(Equal([]string{"ticket.pdf"}))
	})

	It("ignores mail without attachments", func() {
		verifySender()

		err := ingestor.Process(ctx, []byte(plainMessage))

		Expect(err).NotTo(HaveOccurred())
		Expect(notifier.pending).To(BeEmpty())
	})
})

var _ = Describe("DirSource", func() {
	var (
		dir    string
		source *DirSource
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		var err error
		source, err = NewDirSource(dir)
		Expect(err).NotTo(HaveOccurred())
	})

	It("fetches .eml files and claims them", func() {
		Expect(os.WriteFile(filepath.Join(dir, "one.eml"), []byte("msg one"), 0644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not mail"), 0644)).To(Succeed())

		messages, err := source.Fetch(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(messages).To(Equal([][]byte{[]byte("msg one")}))
		Expect(filepath.Join(dir, "one.eml.processed")).To(BeARegularFile())

		messages, err = source.Fetch(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(messages).To(BeEmpty())
	})

	It("returns nothing for an empty directory", func() {
		messages, err := source.Fetch(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(messages).To(BeEmpty())
	})
})

var _ = Describe("Poller", func() {
	It("stops when the context is cancelled", func() {
		dir := GinkgoT().TempDir()
		source, err := NewDirSource(dir)
		Expect(err).NotTo(HaveOccurred())

		poller := NewPoller(source, NewIngestor(nil, nil), time.Millisecond)
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan struct{})
		go func() {
			poller.Run(ctx)
			close(done)
		}()

		cancel()
		Eventually(done).Should(BeClosed())
	})
})
