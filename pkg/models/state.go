package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TaskStatus is the lifecycle position of a single task. A task that is not
// present in the state is pending.
type TaskStatus string

const (
	TaskRunning  TaskStatus = "running"
	TaskComplete TaskStatus = "complete"
	TaskFailed   TaskStatus = "error"
)

// TaskError records why the last attempt of a task failed
type TaskError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Result is the outcome of a successful task. The concrete types below are the
// only implementations.
type Result interface {
	ResultKind() string
}

// InvoiceResult is produced by create_invoice
type InvoiceResult struct {
	InvoiceID string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// CreditNoteResult is produced by create_credit_note
type CreditNoteResult struct {
	CreditNoteID string          `json:"credit_note_id"`
	Amount       decimal.Decimal `json:"amount"`
}

// PaymentResult is produced by the invoice and credit note payment tasks
type PaymentResult struct {
	PaymentID string          `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// TransferResult is produced by bank transfer tasks
type TransferResult struct {
	TransferID string          `json:"transfer_id"`
	Amount     decimal.Decimal `json:"amount"`
}

// TransactionResult is produced by fee transaction tasks
type TransactionResult struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
}

// Skipped marks a task that completed without touching the ledger
type Skipped struct {
	Reason string `json:"reason"`
}

func (InvoiceResult) ResultKind() string     { return "invoice" }
func (CreditNoteResult) ResultKind() string  { return "credit_note" }
func (PaymentResult) ResultKind() string     { return "payment" }
func (TransferResult) ResultKind() string    { return "transfer" }
func (TransactionResult) ResultKind() string { return "transaction" }
func (Skipped) ResultKind() string           { return "skipped" }

// TaskState is the persisted record of one task
type TaskState struct {
	Status TaskStatus
	Error  *TaskError
	Result Result
}

type taskStateJSON struct {
	Status TaskStatus      `json:"status"`
	Error  *TaskError      `json:"error,omitempty"`
	Kind   string          `json:"kind,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

func (t TaskState) MarshalJSON() ([]byte, error) {
	out := taskStateJSON{Status: t.Status, Error: t.Error}
	if t.Result != nil {
		raw, err := json.Marshal(t.Result)
		if err != nil {
			return nil, err
		}
		out.Kind = t.Result.ResultKind()
		out.Result = raw
	}
	return json.Marshal(out)
}

func (t *TaskState) UnmarshalJSON(data []byte) error {
	var in taskStateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	t.Status = in.Status
	t.Error = in.Error
	t.Result = nil
	if in.Kind == "" {
		return nil
	}

	var err error
	switch in.Kind {
	case "invoice":
		var r InvoiceResult
		err = json.Unmarshal(in.Result, &r)
		t.Result = r
	case "credit_note":
		var r CreditNoteResult
		err = json.Unmarshal(in.Result, &r)
		t.Result = r
	case "payment":
		var r PaymentResult
		err = json.Unmarshal(in.Result, &r)
		t.Result = r
	case "transfer":
		var r TransferResult
		err = json.Unmarshal(in.Result, &r)
		t.Result = r
	case "transaction":
		var r TransactionResult
		err = json.Unmarshal(in.Result, &r)
		t.Result = r
	case "skipped":
		var r Skipped
		err = json.Unmarshal(in.Result, &r)
		t.Result = r
	default:
		return fmt.Errorf("unknown task result kind %q", in.Kind)
	}
	return err
}

// State maps task names to their records, remembering the order in which
// tasks were first recorded.
type State struct {
	RunID     string
	UpdatedAt time.Time

	names []string
	tasks map[string]TaskState
}

// NewState returns an empty state
func NewState() *State {
	return &State{tasks: make(map[string]TaskState)}
}

// Get returns the record for a task, if any
func (s *State) Get(name string) (TaskState, bool) {
	if s == nil || s.tasks == nil {
		return TaskState{}, false
	}
	ts, ok := s.tasks[name]
	return ts, ok
}

// Set stores the record for a task
func (s *State) Set(name string, ts TaskState) {
	if s.tasks == nil {
		s.tasks = make(map[string]TaskState)
	}
	if _, ok := s.tasks[name]; !ok {
		s.names = append(s.names, name)
	}
	s.tasks[name] = ts
}

// Delete removes a task so that it runs again on the next execution
func (s *State) Delete(name string) bool {
	if _, ok := s.tasks[name]; !ok {
		return false
	}
	delete(s.tasks, name)
	for i, n := range s.names {
		if n == name {
			s.names = append(s.names[:i], s.names[i+1:]...)
			break
		}
	}
	return true
}

// Names returns task names in recording order
func (s *State) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.names))
	copy(names, s.names)
	return names
}

// Len returns the number of recorded tasks
func (s *State) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// IsComplete reports whether a task has completed
func (s *State) IsComplete(name string) bool {
	ts, ok := s.Get(name)
	return ok && ts.Status == TaskComplete
}

type stateJSON struct {
	RunID     string          `json:"run_id,omitempty"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
	Tasks     json.RawMessage `json:"tasks"`
}

func (s *State) MarshalJSON() ([]byte, error) {
	var tasks bytes.Buffer
	tasks.WriteByte('{')
	for i, name := range s.names {
		if i > 0 {
			tasks.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(s.tasks[name])
		if err != nil {
			return nil, err
		}
		tasks.Write(key)
		tasks.WriteByte(':')
		tasks.Write(value)
	}
	tasks.WriteByte('}')

	out := stateJSON{RunID: s.RunID, Tasks: tasks.Bytes()}
	if !s.UpdatedAt.IsZero() {
		updatedAt := s.UpdatedAt.UTC()
		out.UpdatedAt = &updatedAt
	}
	return json.Marshal(out)
}

func (s *State) UnmarshalJSON(data []byte) error {
	var in stateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	s.RunID = in.RunID
	s.UpdatedAt = time.Time{}
	if in.UpdatedAt != nil {
		s.UpdatedAt = *in.UpdatedAt
	}
	s.names = nil
	s.tasks = make(map[string]TaskState)

	if len(in.Tasks) == 0 || string(in.Tasks) == "null" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(in.Tasks))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("state tasks must be a JSON object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("state task name must be a string")
		}
		var ts TaskState
		if err := dec.Decode(&ts); err != nil {
			return fmt.Errorf("task %s: %w", name, err)
		}
		s.Set(name, ts)
	}
	return nil
}
