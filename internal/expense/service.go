package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mberti/spesa/internal/calendar"
	"github.com/mberti/spesa/internal/parsing"
	"github.com/mberti/spesa/internal/scanning"
)

// ErrUnsupportedDocument marks an uploaded file nothing could interpret.
var ErrUnsupportedDocument = errors.New("unsupported document")

// ErrNotOwner marks an attempt to touch another employee's expense.
var ErrNotOwner = errors.New("expense belongs to another employee")

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time { return time.Now() }

// Directory resolves chat-user metadata. The UTC offset feeds the
// "yesterday" token of the expense parser.
type Directory interface {
	TZOffsetMinutes(ctx context.Context, userID string) (int, error)
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Extractor turns document bytes into plain text.
type Extractor interface {
	Text(data []byte, contentType string) (string, error)
}

// Service orchestrates expense operations around the store, the proof
// storage and the parsers.
type Service struct {
	db         DB
	storage    Storage
	directory  Directory
	extractor  Extractor
	scanner    scanning.Scanner // nil disables the fallback
	timeSource TimeSource
}

// NewService creates a Service reading the wall clock. scanner may be nil.
func NewService(db DB, storage Storage, directory Directory, extractor Extractor, scanner scanning.Scanner) *Service {
	return NewServiceWithDeps(db, storage, directory, extractor, scanner, defaultTimeSource{})
}

// NewServiceWithDeps creates a Service with a custom time source for tests.
func NewServiceWithDeps(db DB, storage Storage, directory Directory, extractor Extractor, scanner scanning.Scanner, ts TimeSource) *Service {
	return &Service{
		db:         db,
		storage:    storage,
		directory:  directory,
		extractor:  extractor,
		scanner:    scanner,
		timeSource: ts,
	}
}

// EnsureEmployee records the employee on first contact so later lookups by
// email or id resolve.
func (s *Service) EnsureEmployee(ctx context.Context, userID, userName, channelID string) error {
	if existing, err := s.db.GetEmployee(userID); err == nil {
		if channelID != "" && existing.ChannelID != channelID {
			existing.ChannelID = channelID
			return s.db.SaveEmployee(existing)
		}
		return nil
	}
	if userName == "" {
		name, err := s.directory.DisplayName(ctx, userID)
		if err != nil {
			return fmt.Errorf("resolving user name: %w", err)
		}
		userName = name
	}
	return s.db.SaveEmployee(&Employee{UserID: userID, UserName: userName, ChannelID: channelID})
}

// AddFromText interprets a typed expense command and persists the result.
// Text nothing could be made of yields (nil, nil): not an error, the
// caller answers with usage help.
func (s *Service) AddFromText(ctx context.Context, userID, text string) (*Expense, error) {
	now := s.timeSource.Now()

	offset, err := s.directory.TZOffsetMinutes(ctx, userID)
	if err != nil {
		slog.Warn("could not resolve user timezone, assuming UTC", "user_id", userID, "error", err)
		offset = 0
	}

	parsed := parsing.ParseExpense(text, now, offset)
	if parsed == nil {
		return nil, nil
	}

	e := &Expense{
		EmployeeUserID: userID,
		PayedOn:        parsed.PayedOn,
		Amount:         parsed.Amount,
		Description:    parsed.Description,
		CreatedAt:      now,
	}
	if _, err := s.db.AddExpense(e); err != nil {
		return nil, fmt.Errorf("saving expense: %w", err)
	}
	return e, nil
}

// AddTicket interprets an uploaded ticket document. A recognized provider
// format becomes a committed expense right away; a document only the
// fallback scanner could read becomes a pending expense awaiting
// confirmation. Exactly one of the results is non-nil on success.
func (s *Service) AddTicket(ctx context.Context, userID, filename string, data []byte, contentType string) (*Expense, *PendingExpense, error) {
	return s.ingestTicket(ctx, userID, filename, data, contentType, false)
}

// AddPendingTicket interprets a ticket that arrived by email. Email-derived
// expenses always wait for the user, however they were read.
func (s *Service) AddPendingTicket(ctx context.Context, userID, filename string, data []byte, contentType string) (*PendingExpense, error) {
	_, pending, err := s.ingestTicket(ctx, userID, filename, data, contentType, true)
	return pending, err
}

func (s *Service) ingestTicket(ctx context.Context, userID, filename string, data []byte, contentType string, forcePending bool) (*Expense, *PendingExpense, error) {
	now := s.timeSource.Now()

	parsed := s.parseTicketText(data, contentType)
	if parsed == nil {
		scanned := s.scanTicket(data, contentType, now)
		if scanned == nil {
			return nil, nil, ErrUnsupportedDocument
		}
		parsed = scanned
		forcePending = true
	}

	proofPath, err := s.storage.Save(parsed.PayedOn, sanitizeFilename(filename), data)
	if err != nil {
		return nil, nil, fmt.Errorf("saving proof: %w", err)
	}

	if forcePending {
		p := &PendingExpense{
			EmployeeUserID: userID,
			PayedOn:        parsed.PayedOn,
			Amount:         parsed.Amount,
			Description:    parsed.Description,
			ProofPath:      proofPath,
			Outcome:        OutcomeOpen,
			CreatedAt:      now,
		}
		if _, err := s.db.AddPending(p); err != nil {
			s.deleteProofQuietly(proofPath)
			return nil, nil, fmt.Errorf("saving pending expense: %w", err)
		}
		return nil, p, nil
	}

	e := &Expense{
		EmployeeUserID: userID,
		PayedOn:        parsed.PayedOn,
		Amount:         parsed.Amount,
		Description:    parsed.Description,
		ProofPath:      proofPath,
		CreatedAt:      now,
	}
	if _, err := s.db.AddExpense(e); err != nil {
		s.deleteProofQuietly(proofPath)
		return nil, nil, fmt.Errorf("saving expense: %w", err)
	}
	return e, nil, nil
}

func (s *Service) parseTicketText(data []byte, contentType string) *parsing.ParsedExpense {
	text, err := s.extractor.Text(data, contentType)
	if err != nil {
		slog.Debug("no text extracted from document", "content_type", contentType, "error", err)
		return nil
	}
	return parsing.ParseTicket(text)
}

func (s *Service) scanTicket(data []byte, contentType string, now time.Time) *parsing.ParsedExpense {
	if s.scanner == nil {
		return nil
	}
	scanned, err := s.scanner.ScanTicket(data, contentType)
	if err != nil {
		slog.Error("fallback scan failed", "content_type", contentType, "error", err)
		return nil
	}

	payedOn := calendar.DateOf(now)
	if scanned.Date != "" {
		if d, err := time.ParseInLocation("2006-01-02", scanned.Date, time.UTC); err == nil {
			payedOn = d
		}
	}
	return &parsing.ParsedExpense{
		Amount:      fmt.Sprintf("%.2f", scanned.Amount),
		PayedOn:     payedOn,
		Description: scanned.Title,
	}
}

// ResolvePending settles a pending expense. Confirming returns the
// committed expense; discarding returns nil.
func (s *Service) ResolvePending(ctx context.Context, pendingID uint64, outcome parsing.Outcome) (*Expense, error) {
	switch outcome {
	case parsing.OutcomeConfirm:
		id, err := s.db.ConfirmPending(pendingID)
		if err != nil {
			return nil, fmt.Errorf("confirming pending expense: %w", err)
		}
		return s.db.GetExpense(id)
	case parsing.OutcomeDiscard:
		if err := s.db.DiscardPending(pendingID); err != nil {
			return nil, fmt.Errorf("discarding pending expense: %w", err)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unknown outcome: %s", outcome)
}

// DeleteExpense removes an expense the user owns, cleaning up its proof
// when no other expense references it.
func (s *Service) DeleteExpense(ctx context.Context, userID string, id uint64) (*Expense, error) {
	e, err := s.db.GetExpense(id)
	if err != nil {
		return nil, fmt.Errorf("getting expense for deletion: %w", err)
	}
	if e.EmployeeUserID != userID {
		return nil, ErrNotOwner
	}
	if err := s.db.DeleteExpense(id); err != nil {
		return nil, fmt.Errorf("deleting expense: %w", err)
	}

	if e.ProofPath != "" {
		refs, err := s.db.CountProofRefs(e.ProofPath)
		if err != nil {
			slog.Warn("could not check proof references", "proof", e.ProofPath, "error", err)
		} else if refs == 0 {
			s.deleteProofQuietly(e.ProofPath)
		}
	}
	return e, nil
}

// Expenses returns the user's expenses between from and to inclusive.
func (s *Service) Expenses(userID string, from, to time.Time) ([]*Expense, error) {
	return s.db.GetExpenses(userID, from, to)
}

// Proof is a downloaded attachment paired with the expense it proves.
type Proof struct {
	Expense  *Expense
	Filename string
	Data     []byte
}

// CollectProofs downloads every proof attached to the user's expenses in
// the range.
func (s *Service) CollectProofs(ctx context.Context, userID string, from, to time.Time) ([]Proof, error) {
	expenses, err := s.db.GetExpenses(userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}

	proofs := make([]Proof, 0, len(expenses))
	for _, e := range expenses {
		if e.ProofPath == "" {
			continue
		}
		data, err := s.storage.Get(e.ProofPath)
		if err != nil {
			return nil, fmt.Errorf("getting proof for expense %d: %w", e.ID, err)
		}
		proofs = append(proofs, Proof{
			Expense:  e,
			Filename: filepath.Base(e.ProofPath),
			Data:     data,
		})
	}
	return proofs, nil
}

// RegisterEmail records an address for the employee, unverified until the
// confirmation mail is answered.
func (s *Service) RegisterEmail(ctx context.Context, userID, address string) error {
	return s.db.SaveEmail(&Email{Address: address, EmployeeUserID: userID})
}

// EmployeeByEmail resolves a verified sender address to its employee, or
// nil when the address is unknown or unverified.
func (s *Service) EmployeeByEmail(address string) (*Employee, error) {
	email, err := s.db.GetEmail(address)
	if err != nil {
		return nil, nil
	}
	if !email.Verified {
		return nil, nil
	}
	return s.db.GetEmployee(email.EmployeeUserID)
}

// VerifyEmail marks a registered address as verified.
func (s *Service) VerifyEmail(address string) error {
	return s.db.VerifyEmail(address)
}

// Employee returns the stored employee record.
func (s *Service) Employee(userID string) (*Employee, error) {
	return s.db.GetEmployee(userID)
}

func (s *Service) deleteProofQuietly(path string) {
	if err := s.storage.Delete(path); err != nil {
		slog.Warn("could not delete proof", "proof", path, "error", err)
	}
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]`)

// sanitizeFilename flattens whatever name a phone or mail client invented
// into something storable.
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)
	base = unsafeFilenameChars.ReplaceAllString(base, "_")
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "ticket"
	}
	return base + ext
}
