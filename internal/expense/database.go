package expense

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	expenseBucket  = "expenses"
	pendingBucket  = "expenses_pending"
	employeeBucket = "employees"
	emailBucket    = "emails"
)

// DB defines the persistence operations the bot needs. Identity is
// assigned here: Add methods hand back the id the store chose.
type DB interface {
	// AddExpense persists e and returns its assigned id.
	AddExpense(e *Expense) (uint64, error)

	// GetExpense retrieves an expense by id.
	GetExpense(id uint64) (*Expense, error)

	// GetExpenses returns the user's expenses with payed-on between from
	// and to inclusive, ordered by (payed_on, id).
	GetExpenses(userID string, from, to time.Time) ([]*Expense, error)

	// UpdateExpense overwrites an existing expense.
	UpdateExpense(e *Expense) error

	// DeleteExpense removes an expense by id.
	DeleteExpense(id uint64) error

	// CountProofRefs counts committed expenses referencing a proof file.
	CountProofRefs(proofPath string) (int, error)

	// AddPending persists a pending expense and returns its assigned id.
	AddPending(p *PendingExpense) (uint64, error)

	// GetPending retrieves a pending expense by id.
	GetPending(id uint64) (*PendingExpense, error)

	// ConfirmPending copies an open pending expense into the committed
	// expenses, marks it confirmed and returns the new expense id.
	ConfirmPending(id uint64) (uint64, error)

	// DiscardPending marks an open pending expense discarded.
	DiscardPending(id uint64) error

	// GetEmployee retrieves an employee by chat user id.
	GetEmployee(userID string) (*Employee, error)

	// SaveEmployee inserts or overwrites an employee.
	SaveEmployee(e *Employee) error

	// GetEmail retrieves a registered address.
	GetEmail(address string) (*Email, error)

	// SaveEmail inserts or overwrites a registered address.
	SaveEmail(e *Email) error

	// VerifyEmail marks a registered address as verified.
	VerifyEmail(address string) error

	// Close closes the database.
	Close() error
}

// BoltDB implements the DB interface on a bbolt file.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens (or creates) the database file and its buckets.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{expenseBucket, pendingBucket, employeeBucket, emailBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// itob encodes an id as a big-endian key so bucket order follows id order.
func itob(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

// AddExpense persists e and returns its assigned sequence id.
func (b *BoltDB) AddExpense(e *Expense) (uint64, error) {
	var id uint64
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expenseBucket))
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("assigning expense id: %w", err)
		}
		e.ID = seq
		id = seq
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshaling expense: %w", err)
		}
		return bucket.Put(itob(seq), data)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetExpense retrieves an expense by id.
func (b *BoltDB) GetExpense(id uint64) (*Expense, error) {
	var expense *Expense
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(expenseBucket)).Get(itob(id))
		if data == nil {
			return fmt.Errorf("expense not found: %d", id)
		}
		return json.Unmarshal(data, &expense)
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

// GetExpenses returns the user's expenses in [from, to], ordered by
// (payed_on, id).
func (b *BoltDB) GetExpenses(userID string, from, to time.Time) ([]*Expense, error) {
	expenses := make([]*Expense, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(expenseBucket)).ForEach(func(k, v []byte) error {
			var e Expense
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("unmarshaling expense: %w", err)
			}
			if e.EmployeeUserID != userID {
				return nil
			}
			if e.PayedOn.Before(from) || e.PayedOn.After(to) {
				return nil
			}
			expenses = append(expenses, &e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(expenses, func(i, j int) bool {
		if !expenses[i].PayedOn.Equal(expenses[j].PayedOn) {
			return expenses[i].PayedOn.Before(expenses[j].PayedOn)
		}
		return expenses[i].ID < expenses[j].ID
	})
	return expenses, nil
}

// UpdateExpense overwrites an existing expense.
func (b *BoltDB) UpdateExpense(e *Expense) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expenseBucket))
		if bucket.Get(itob(e.ID)) == nil {
			return fmt.Errorf("expense not found: %d", e.ID)
		}
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshaling expense: %w", err)
		}
		return bucket.Put(itob(e.ID), data)
	})
}

// DeleteExpense removes an expense by id.
func (b *BoltDB) DeleteExpense(id uint64) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expenseBucket))
		if bucket.Get(itob(id)) == nil {
			return fmt.Errorf("expense not found: %d", id)
		}
		return bucket.Delete(itob(id))
	})
}

// CountProofRefs counts committed expenses referencing proofPath.
func (b *BoltDB) CountProofRefs(proofPath string) (int, error) {
	count := 0
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(expenseBucket)).ForEach(func(k, v []byte) error {
			var e Expense
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("unmarshaling expense: %w", err)
			}
			if e.ProofPath == proofPath {
				count++
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// AddPending persists a pending expense with outcome OPEN and returns its
// assigned id.
func (b *BoltDB) AddPending(p *PendingExpense) (uint64, error) {
	var id uint64
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pendingBucket))
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("assigning pending expense id: %w", err)
		}
		p.ID = seq
		if p.Outcome == "" {
			p.Outcome = OutcomeOpen
		}
		id = seq
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshaling pending expense: %w", err)
		}
		return bucket.Put(itob(seq), data)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetPending retrieves a pending expense by id.
func (b *BoltDB) GetPending(id uint64) (*PendingExpense, error) {
	var pending *PendingExpense
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(pendingBucket)).Get(itob(id))
		if data == nil {
			return fmt.Errorf("pending expense not found: %d", id)
		}
		return json.Unmarshal(data, &pending)
	})
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// ConfirmPending copies an open pending expense into the committed
// expenses, marks it confirmed and returns the new expense id.
func (b *BoltDB) ConfirmPending(id uint64) (uint64, error) {
	var expenseID uint64
	err := b.db.Update(func(tx *bbolt.Tx) error {
		pending, err := readPending(tx, id)
		if err != nil {
			return err
		}
		if pending.Outcome != OutcomeOpen {
			return fmt.Errorf("pending expense %d already resolved: %s", id, pending.Outcome)
		}

		expenses := tx.Bucket([]byte(expenseBucket))
		seq, err := expenses.NextSequence()
		if err != nil {
			return fmt.Errorf("assigning expense id: %w", err)
		}
		e := &Expense{
			ID:             seq,
			EmployeeUserID: pending.EmployeeUserID,
			PayedOn:        pending.PayedOn,
			Amount:         pending.Amount,
			Description:    pending.Description,
			ProofPath:      pending.ProofPath,
			CreatedAt:      pending.CreatedAt,
		}
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshaling expense: %w", err)
		}
		if err := expenses.Put(itob(seq), data); err != nil {
			return err
		}
		expenseID = seq

		pending.Outcome = OutcomeConfirmed
		return writePending(tx, pending)
	})
	if err != nil {
		return 0, err
	}
	return expenseID, nil
}

// DiscardPending marks an open pending expense discarded.
func (b *BoltDB) DiscardPending(id uint64) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		pending, err := readPending(tx, id)
		if err != nil {
			return err
		}
		if pending.Outcome != OutcomeOpen {
			return fmt.Errorf("pending expense %d already resolved: %s", id, pending.Outcome)
		}
		pending.Outcome = OutcomeDiscarded
		return writePending(tx, pending)
	})
}

func readPending(tx *bbolt.Tx, id uint64) (*PendingExpense, error) {
	data := tx.Bucket([]byte(pendingBucket)).Get(itob(id))
	if data == nil {
		return nil, fmt.Errorf("pending expense not found: %d", id)
	}
	var pending PendingExpense
	if err := json.Unmarshal(data, &pending); err != nil {
		return nil, fmt.Errorf("unmarshaling pending expense: %w", err)
	}
	return &pending, nil
}

func writePending(tx *bbolt.Tx, p *PendingExpense) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling pending expense: %w", err)
	}
	return tx.Bucket([]byte(pendingBucket)).Put(itob(p.ID), data)
}

// GetEmployee retrieves an employee by chat user id.
func (b *BoltDB) GetEmployee(userID string) (*Employee, error) {
	var employee *Employee
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(employeeBucket)).Get([]byte(userID))
		if data == nil {
			return fmt.Errorf("employee not found: %s", userID)
		}
		return json.Unmarshal(data, &employee)
	})
	if err != nil {
		return nil, err
	}
	return employee, nil
}

// SaveEmployee inserts or overwrites an employee.
func (b *BoltDB) SaveEmployee(e *Employee) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshaling employee: %w", err)
		}
		return tx.Bucket([]byte(employeeBucket)).Put([]byte(e.UserID), data)
	})
}

// GetEmail retrieves a registered address.
func (b *BoltDB) GetEmail(address string) (*Email, error) {
	var email *Email
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(emailBucket)).Get([]byte(address))
		if data == nil {
			return fmt.Errorf("email not found: %s", address)
		}
		return json.Unmarshal(data, &email)
	})
	if err != nil {
		return nil, err
	}
	return email, nil
}

// SaveEmail inserts or overwrites a registered address.
func (b *BoltDB) SaveEmail(e *Email) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshaling email: %w", err)
		}
		return tx.Bucket([]byte(emailBucket)).Put([]byte(e.Address), data)
	})
}

// VerifyEmail marks a registered address as verified.
func (b *BoltDB) VerifyEmail(address string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(emailBucket))
		data := bucket.Get([]byte(address))
		if data == nil {
			return fmt.Errorf("email not found: %s", address)
		}
		var email Email
		if err := json.Unmarshal(data, &email); err != nil {
			return fmt.Errorf("unmarshaling email: %w", err)
		}
		email.Verified = true
		updated, err := json.Marshal(&email)
		if err != nil {
			return fmt.Errorf("marshaling email: %w", err)
		}
		return bucket.Put([]byte(address), updated)
	})
}

// Close closes the database.
func (b *BoltDB) Close() error {
	return b.db.Close()
}
