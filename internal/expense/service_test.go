package expense

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mberti/spesa/internal/calendar"
	"github.com/mberti/spesa/internal/parsing"
	"github.com/mberti/spesa/internal/scanning"
)

// mockDB is an in-memory DB for service tests.
type mockDB struct {
	expenses      map[uint64]*Expense
	pending       map[uint64]*PendingExpense
	employees     map[string]*Employee
	emails        map[string]*Email
	nextID        uint64
	addExpenseErr error
	addPendingErr error
}

func newMockDB() *mockDB {
	return &mockDB{
		expenses:  make(map[uint64]*Expense),
		pending:   make(map[uint64]*PendingExpense),
		employees: make(map[string]*Employee),
		emails:    make(map[string]*Email),
	}
}

func (m *mockDB) AddExpense(e *Expense) (uint64, error) {
	if m.addExpenseErr != nil {
		return 0, m.addExpenseErr
	}
	m.nextID++
	e.ID = m.nextID
	m.expenses[e.ID] = e
	return e.ID, nil
}

func (m *mockDB) GetExpense(id uint64) (*Expense, error) {
	e, ok := m.expenses[id]
	if !ok {
		return nil, errors.New("expense not found")
	}
	return e, nil
}

func (m *mockDB) GetExpenses(userID string, from, to time.Time) ([]*Expense, error) {
	out := make([]*Expense, 0)
	for _, e := range m.expenses {
		if e.EmployeeUserID != userID || e.PayedOn.Before(from) || e.PayedOn.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *mockDB) UpdateExpense(e *Expense) error {
	if _, ok := m.expenses[e.ID]; !ok {
		return errors.New("expense not found")
	}
	m.expenses[e.ID] = e
	return nil
}

func (m *mockDB) DeleteExpense(id uint64) error {
	if _, ok := m.expenses[id]; !ok {
		return errors.New("expense not found")
	}
	delete(m.expenses, id)
	return nil
}

func (m *mockDB) CountProofRefs(proofPath string) (int, error) {
	count := 0
	for _, e := range m.expenses {
		if e.ProofPath == proofPath {
			count++
		}
	}
	return count, nil
}

func (m *mockDB) AddPending(p *PendingExpense) (uint64, error) {
	if m.addPendingErr != nil {
		return 0, m.addPendingErr
	}
	m.nextID++
	p.ID = m.nextID
	if p.Outcome == "" {
		p.Outcome = OutcomeOpen
	}
	m.pending[p.ID] = p
	return p.ID, nil
}

func (m *mockDB) GetPending(id uint64) (*PendingExpense, error) {
	p, ok := m.pending[id]
	if !ok {
		return nil, errors.New("pending expense not found")
	}
	return p, nil
}

func (m *mockDB) ConfirmPending(id uint64) (uint64, error) {
	p, ok := m.pending[id]
	if !ok {
		return 0, errors.New("pending expense not found")
	}
	if p.Outcome != OutcomeOpen {
		return 0, errors.New("already resolved")
	}
	p.Outcome = OutcomeConfirmed
	return m.AddExpense(&Expense{
		EmployeeUserID: p.EmployeeUserID,
		PayedOn:        p.PayedOn,
		Amount:         p.Amount,
		Description:    p.Description,
		ProofPath:      p.ProofPath,
		CreatedAt:      p.CreatedAt,
	})
}

func (m *mockDB) DiscardPending(id uint64) error {
	p, ok := m.pending[id]
	if !ok {
		return errors.New("pending expense not found")
	}
	if p.Outcome != OutcomeOpen {
		return errors.New("already resolved")
	}
	p.Outcome = OutcomeDiscarded
	return nil
}

func (m *mockDB) GetEmployee(userID string) (*Employee, error) {
	e, ok := m.employees[userID]
	if !ok {
		return nil, errors.New("employee not found")
	}
	return e, nil
}

func (m *mockDB) SaveEmployee(e *Employee) error {
	m.employees[e.UserID] = e
	return nil
}

func (m *mockDB) GetEmail(address string) (*Email, error) {
	e, ok := m.emails[address]
	if !ok {
		return nil, errors.New("email not found")
	}
	return e, nil
}

func (m *mockDB) SaveEmail(e *Email) error {
	m.emails[e.Address] = e
	return nil
}

func (m *mockDB) VerifyEmail(address string) error {
	e, ok := m.emails[address]
	if !ok {
		return errors.New("email not found")
	}
	e.Verified = true
	return nil
}

func (m *mockDB) Close() error { return nil }

// mockStorage records proofs in memory.
type mockStorage struct {
	saved   map[string][]byte
	saveErr error
}

func newMockStorage() *mockStorage {
	return &mockStorage{saved: make(map[string][]byte)}
}

func (m *mockStorage) Save(payedOn time.Time, filename string, data []byte) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	path := payedOn.Format("2006-01-02") + "/" + filename
	m.saved[path] = data
	return path, nil
}

func (m *mockStorage) Get(path string) ([]byte, error) {
	data, ok := m.saved[path]
	if !ok {
		return nil, errors.New("proof not found")
	}
	return data, nil
}

func (m *mockStorage) Delete(path string) error {
	if _, ok := m.saved[path]; !ok {
		return errors.New("proof not found")
	}
	delete(m.saved, path)
	return nil
}

// mockDirectory answers user lookups with fixed values.
type mockDirectory struct {
	offset    int
	offsetErr error
	name      string
}

func (m *mockDirectory) TZOffsetMinutes(ctx context.Context, userID string) (int, error) {
	return m.offset, m.offsetErr
}

func (m *mockDirectory) DisplayName(ctx context.Context, userID string) (string, error) {
	return m.name, nil
}

// mockExtractor returns canned document text.
type mockExtractor struct {
	text string
	err  error
}

func (m *mockExtractor) Text(data []byte, contentType string) (string, error) {
	return m.text, m.err
}

// mockScanner returns canned vision-model output.
type mockScanner struct {
	data *scanning.TicketData
	err  error
}

func (m *mockScanner) ScanTicket(imageData []byte, contentType string) (*scanning.TicketData, error) {
	return m.data, m.err
}

func (m *mockScanner) Close() error { return nil }

type fixedTime struct{ now time.Time }

func (f fixedTime) Now() time.Time { return f.now }

var _ = Describe("Service", func() {
	var (
		db        *mockDB
		storage   *mockStorage
		directory *mockDirectory
		extractor *mockExtractor
		service   *Service
		now       time.Time
		ctx       context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2020, time.January, 16, 14, 30, 0, 0, time.UTC)
		db = newMockDB()
		storage = newMockStorage()
		directory = &mockDirectory{name: "mario"}
		extractor = &mockExtractor{err: errors.New("no text")}
		service = NewServiceWithDeps(db, storage, directory, extractor, nil, fixedTime{now})
	})

	withScanner := func(s *mockScanner) {
		service = NewServiceWithDeps(db, storage, directory, extractor, s, fixedTime{now})
	}

	Describe("AddFromText", func() {
		It("persists a parsed expense", func() {
			e, err := service.AddFromText(ctx, "U1", "29.95 15 lunch")

			Expect(err).NotTo(HaveOccurred())
			Expect(e).NotTo(BeNil())
			Expect(e.ID).NotTo(BeZero())
			Expect(e.Amount).To(Equal("29.95"))
			Expect(e.PayedOn).To(Equal(calendar.Date(2020, time.January, 15)))
			Expect(e.Description).To(Equal("lunch"))
			Expect(db.expenses).To(HaveLen(1))
		})

		It("returns nothing for text without an amount", func() {
			e, err := service.AddFromText(ctx, "U1", "hello there")

			Expect(err).NotTo(HaveOccurred())
			Expect(e).To(BeNil())
			Expect(db.expenses).To(BeEmpty())
		})

		It("uses the user's timezone for yesterday", func() {
			directory.offset = -5 * 60
			now = time.Date(2020, time.January, 16, 0, 30, 0, 0, time.UTC)
			service = NewServiceWithDeps(db, storage, directory, extractor, nil, fixedTime{now})

			e, err := service.AddFromText(ctx, "U1", "8 yesterday taxi")

			Expect(err).NotTo(HaveOccurred())
			Expect(e.PayedOn).To(Equal(calendar.Date(2020, time.January, 14)))
		})

		It("falls back to UTC when the timezone lookup fails", func() {
			directory.offsetErr = errors.New("user not found")

			e, err := service.AddFromText(ctx, "U1", "8 yesterday")

			Expect(err).NotTo(HaveOccurred())
			Expect(e.PayedOn).To(Equal(calendar.Date(2020, time.January, 15)))
		})
	})

	Describe("AddTicket", func() {
		ticketText := "Partenza: MILANO Ore 19:37 - 13/12/2019 Totale: 9.90 €"

		It("commits a ticket a provider pattern recognizes", func() {
			extractor = &mockExtractor{text: ticketText}
			service = NewServiceWithDeps(db, storage, directory, extractor, nil, fixedTime{now})

			e, p, err := service.AddTicket(ctx, "U1", "ticket.pdf", []byte("%PDF"), "application/pdf")

			Expect(err).NotTo(HaveOccurred())
			Expect(p).To(BeNil())
			Expect(e).NotTo(BeNil())
			Expect(e.Amount).To(Equal("9.90"))
			Expect(e.PayedOn).To(Equal(calendar.Date(2019, time.December, 13)))
			Expect(e.ProofPath).To(Equal("2019-12-13/ticket.pdf"))
			Expect(storage.saved).To(HaveKey("2019-12-13/ticket.pdf"))
		})

		It("falls back to the scanner and stores a pending expense", func() {
			withScanner(&mockScanner{data: &scanning.TicketData{
				Title:  "bus ticket",
				Date:   "2020-01-10",
				Amount: 2.6,
			}})

			e, p, err := service.AddTicket(ctx, "U1", "ticket.jpg", []byte("jpeg"), "image/jpeg")

			Expect(err).NotTo(HaveOccurred())
			Expect(e).To(BeNil())
			Expect(p).NotTo(BeNil())
			Expect(p.Amount).To(Equal("2.60"))
			Expect(p.PayedOn).To(Equal(calendar.Date(2020, time.January, 10)))
			Expect(p.Description).To(Equal("bus ticket"))
			Expect(p.Outcome).To(Equal(OutcomeOpen))
		})

		It("defaults the scanned date to today when the model found none", func() {
			withScanner(&mockScanner{data: &scanning.TicketData{Title: "ticket", Amount: 1}})

			_, p, err := service.AddTicket(ctx, "U1", "t.jpg", []byte("jpeg"), "image/jpeg")

			Expect(err).NotTo(HaveOccurred())
			Expect(p.PayedOn).To(Equal(calendar.Date(2020, time.January, 16)))
		})

		It("rejects a document nothing could read", func() {
			_, _, err := service.AddTicket(ctx, "U1", "junk.bin", []byte("junk"), "application/octet-stream")

			Expect(err).To(MatchError(ErrUnsupportedDocument))
			Expect(storage.saved).To(BeEmpty())
		})

		It("removes the proof when the store rejects the expense", func() {
			extractor = &mockExtractor{text: ticketText}
			db.addExpenseErr = errors.New("disk full")
			service = NewServiceWithDeps(db, storage, directory, extractor, nil, fixedTime{now})

			_, _, err := service.AddTicket(ctx, "U1", "ticket.pdf", []byte("%PDF"), "application/pdf")

			Expect(err).To(HaveOccurred())
			Expect(storage.saved).To(BeEmpty())
		})
	})

	Describe("AddPendingTicket", func() {
		It("keeps even a recognized ticket pending", func() {
			extractor = &mockExtractor{text: "Partenza: MILANO Ore 19:37 - 13/12/2019 Totale: 9.90 €"}
			service = NewServiceWithDeps(db, storage, directory, extractor, nil, fixedTime{now})

			p, err := service.AddPendingTicket(ctx, "U1", "ticket.pdf", []byte("%PDF"), "application/pdf")

			Expect(err).NotTo(HaveOccurred())
			Expect(p).NotTo(BeNil())
			Expect(p.Amount).To(Equal("9.90"))
			Expect(db.expenses).To(BeEmpty())
		})
	})

	Describe("ResolvePending", func() {
		var pendingID uint64

		BeforeEach(func() {
			var err error
			pendingID, err = db.AddPending(&PendingExpense{
				EmployeeUserID: "U1",
				PayedOn:        calendar.Date(2020, time.January, 10),
				Amount:         "4.20",
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("confirming returns the committed expense", func() {
			e, err := service.ResolvePending(ctx, pendingID, parsing.OutcomeConfirm)

			Expect(err).NotTo(HaveOccurred())
			Expect(e).NotTo(BeNil())
			Expect(e.Amount).To(Equal("4.20"))
		})

		It("discarding returns nothing", func() {
			e, err := service.ResolvePending(ctx, pendingID, parsing.OutcomeDiscard)

			Expect(err).NotTo(HaveOccurred())
			Expect(e).To(BeNil())
			Expect(db.expenses).To(BeEmpty())
		})
	})

	Describe("DeleteExpense", func() {
		var owned *Expense

		BeforeEach(func() {
			owned = &Expense{EmployeeUserID: "U1", PayedOn: calendar.Date(2020, time.January, 10), Amount: "1.00"}
			_, err := db.AddExpense(owned)
			Expect(err).NotTo(HaveOccurred())
		})

		It("deletes an owned expense", func() {
			e, err := service.DeleteExpense(ctx, "U1", owned.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(e.ID).To(Equal(owned.ID))
			Expect(db.expenses).To(BeEmpty())
		})

		It("refuses another user's expense", func() {
			_, err := service.DeleteExpense(ctx, "U2", owned.ID)

			Expect(err).To(MatchError(ErrNotOwner))
			Expect(db.expenses).To(HaveLen(1))
		})

		It("removes an unshared proof", func() {
			path, err := storage.Save(owned.PayedOn, "proof.pdf", []byte("data"))
			Expect(err).NotTo(HaveOccurred())
			owned.ProofPath = path

			_, err = service.DeleteExpense(ctx, "U1", owned.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(storage.saved).To(BeEmpty())
		})

		It("keeps a proof another expense still references", func() {
			path, err := storage.Save(owned.PayedOn, "proof.pdf", []byte("data"))
			Expect(err).NotTo(HaveOccurred())
			owned.ProofPath = path

			other := &Expense{EmployeeUserID: "U1", PayedOn: owned.PayedOn, Amount: "2.00", ProofPath: path}
			_, err = db.AddExpense(other)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.DeleteExpense(ctx, "U1", owned.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(storage.saved).To(HaveKey(path))
		})
	})

	Describe("CollectProofs", func() {
		It("returns proofs for expenses that have one", func() {
			path, err := storage.Save(calendar.Date(2020, time.January, 10), "a.pdf", []byte("pdf-a"))
			Expect(err).NotTo(HaveOccurred())

			_, err = db.AddExpense(&Expense{EmployeeUserID: "U1", PayedOn: calendar.Date(2020, time.January, 10), Amount: "1.00", ProofPath: path})
			Expect(err).NotTo(HaveOccurred())
			_, err = db.AddExpense(&Expense{EmployeeUserID: "U1", PayedOn: calendar.Date(2020, time.January, 11), Amount: "2.00"})
			Expect(err).NotTo(HaveOccurred())

			from, to := calendar.YearMonthBounds(2020, time.January)
			proofs, err := service.CollectProofs(ctx, "U1", from, to)

			Expect(err).NotTo(HaveOccurred())
			Expect(proofs).To(HaveLen(1))
			Expect(proofs[0].Filename).To(Equal("a.pdf"))
			Expect(proofs[0].Data).To(Equal([]byte("pdf-a")))
		})
	})

	Describe("EnsureEmployee", func() {
		It("records a new employee", func() {
			Expect(service.EnsureEmployee(ctx, "U1", "mario", "C1")).To(Succeed())

			e, err := db.GetEmployee("U1")
			Expect(err).NotTo(HaveOccurred())
			Expect(e.UserName).To(Equal("mario"))
		})

		It("asks the directory when the name is missing", func() {
			Expect(service.EnsureEmployee(ctx, "U1", "", "C1")).To(Succeed())

			e, err := db.GetEmployee("U1")
			Expect(err).NotTo(HaveOccurred())
			Expect(e.UserName).To(Equal("mario"))
		})

		It("updates a changed channel", func() {
			Expect(service.EnsureEmployee(ctx, "U1", "mario", "C1")).To(Succeed())
			Expect(service.EnsureEmployee(ctx, "U1", "mario", "C2")).To(Succeed())

			e, err := db.GetEmployee("U1")
			Expect(err).NotTo(HaveOccurred())
			Expect(e.ChannelID).To(Equal("C2"))
		})
	})

	Describe("email registration", func() {
		BeforeEach(func() {
			Expect(service.EnsureEmployee(ctx, "U1", "mario", "C1")).To(Succeed())
			Expect(service.RegisterEmail(ctx, "U1", "mario@example.com")).To(Succeed())
		})

		It("hides unverified addresses", func() {
			e, err := service.EmployeeByEmail("mario@example.com")

			Expect(err).NotTo(HaveOccurred())
			Expect(e).To(BeNil())
		})

		It("resolves a verified address to its employee", func() {
			Expect(service.VerifyEmail("mario@example.com")).To(Succeed())

			e, err := service.EmployeeByEmail("mario@example.com")

			Expect(err).NotTo(HaveOccurred())
			Expect(e).NotTo(BeNil())
			Expect(e.UserID).To(Equal("U1"))
		})

		It("resolves nothing for an unknown address", func() {
			e, err := service.EmployeeByEmail("nobody@example.com")

			Expect(err).NotTo(HaveOccurred())
			Expect(e).To(BeNil())
		})
	})
})

var _ = Describe("sanitizeFilename", func() {
	It("keeps a plain name", func() {
		Expect(sanitizeFilename("ticket.pdf")).To(Equal("ticket.pdf"))
	})

	It("strips directories and odd characters", func() {
		Expect(sanitizeFilename("../../etc/pass wd?.pdf")).NotTo(ContainSubstring("/"))
	})
})
