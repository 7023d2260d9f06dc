package expense

import "time"

// Expense is a committed expense entry. Amount stays the literal decimal
// string the parser captured; currency rounding is left to whoever renders
// or exports it.
type Expense struct {
	ID             uint64    `json:"id"`
	EmployeeUserID string    `json:"employee_user_id"`
	PayedOn        time.Time `json:"payed_on"`
	Amount         string    `json:"amount"`
	Description    string    `json:"description,omitempty"`
	ProofPath      string    `json:"proof_path,omitempty"`
	ExternalID     string    `json:"external_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Outcome is the resolution state of a pending expense.
type Outcome string

const (
	OutcomeOpen      Outcome = "OPEN"
	OutcomeConfirmed Outcome = "CONFIRMED"
	OutcomeDiscarded Outcome = "DISCARDED"
)

// PendingExpense is an expense derived from an inbound email attachment,
// waiting for the user to confirm or discard it.
type PendingExpense struct {
	ID             uint64    `json:"id"`
	EmployeeUserID string    `json:"employee_user_id"`
	PayedOn        time.Time `json:"payed_on"`
	Amount         string    `json:"amount"`
	Description    string    `json:"description,omitempty"`
	ProofPath      string    `json:"proof_path,omitempty"`
	Outcome        Outcome   `json:"outcome"`
	CreatedAt      time.Time `json:"created_at"`
}

// Employee maps a chat-platform user to the channel the bot talks to them on.
type Employee struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	ChannelID string `json:"channel_id,omitempty"`
}

// Email is a sender address registered by an employee. Only verified
// addresses may feed pending expenses.
type Email struct {
	Address        string `json:"address"`
	EmployeeUserID string `json:"employee_user_id"`
	Verified       bool   `json:"verified"`
}
