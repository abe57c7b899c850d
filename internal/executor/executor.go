// Package executor recreates an export in the ledger as a fixed sequence of
// named tasks. Every task outcome is persisted, so a run that fails part way
// can be started again and only repeats the tasks that have not completed.
package executor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"xeroexport/internal/logger"
	"xeroexport/internal/proposal"
	"xeroexport/pkg/models"
	"xeroexport/pkg/services"
)

// Gateway is the subset of the ledger client the executor needs
type Gateway interface {
	Get(ctx context.Context, path string, params url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Put(ctx context.Context, path string, body, out any) error
}

// Top level task names, in execution order
const (
	TaskCreateInvoice           = "create_invoice"
	TaskCreateInvoicePayment    = "create_invoice_payment"
	TaskCreateCreditNote        = "create_credit_note"
	TaskCreateCreditNotePayment = "create_credit_note_payment"
	TaskAddPayments             = "add_payments"
	TaskAddRefunds              = "add_refunds"
	TaskAddFees                 = "add_fees"
)

// TaskNames returns the top level tasks in the order ExecuteAll runs them
func TaskNames() []string {
	return []string{
		TaskCreateInvoice,
		TaskCreateInvoicePayment,
		TaskCreateCreditNote,
		TaskCreateCreditNotePayment,
		TaskAddPayments,
		TaskAddRefunds,
		TaskAddFees,
	}
}

// taskBody performs the remote work of one task. A nil error with a Skipped
// result means there was nothing to do.
type taskBody func(ctx context.Context) (models.Result, error)

// Executor runs the tasks of a single export. It is not safe for concurrent
// use; tasks of one export always run one after another.
type Executor struct {
	export   *models.Export
	api      Gateway
	proposal *proposal.Proposal
	resolver *Resolver

	load  services.StateLoader
	write services.StateWriter
	state *models.State

	validated bool
	now       func() time.Time
	log       zerolog.Logger
}

// Option customises an Executor
type Option func(*Executor)

// WithLogger replaces the component logger
func WithLogger(log zerolog.Logger) Option {
	return func(e *Executor) {
		e.log = log
	}
}

// WithClock replaces the clock used to stamp persisted state
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// New creates an executor for an export. State is read through load before
// the first task and written through write after every task attempt.
func New(export *models.Export, api Gateway, load services.StateLoader, write services.StateWriter, opts ...Option) *Executor {
	e := &Executor{
		export:   export,
		api:      api,
		proposal: proposal.New(export),
		load:     load,
		write:    write,
		now:      time.Now,
		log:      logger.WithComponent("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resolver = NewResolver(api, e.log)
	return e
}

// ExecuteAll runs every task in order and stops at the first failure.
// Completed tasks from earlier runs are skipped.
func (e *Executor) ExecuteAll(ctx context.Context) error {
	steps := []func(context.Context) error{
		e.CreateInvoice,
		e.CreateInvoicePayment,
		e.CreateCreditNote,
		e.CreateCreditNotePayment,
		e.AddPayments,
		e.AddRefunds,
		e.AddFees,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RunTask runs a single top level task by name
func (e *Executor) RunTask(ctx context.Context, name string) error {
	switch name {
	case TaskCreateInvoice:
		return e.CreateInvoice(ctx)
	case TaskCreateInvoicePayment:
		return e.CreateInvoicePayment(ctx)
	case TaskCreateCreditNote:
		return e.CreateCreditNote(ctx)
	case TaskCreateCreditNotePayment:
		return e.CreateCreditNotePayment(ctx)
	case TaskAddPayments:
		return e.AddPayments(ctx)
	case TaskAddRefunds:
		return e.AddRefunds(ctx)
	case TaskAddFees:
		return e.AddFees(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
}

// State returns the execution state as of the last task, loading it if no
// task has run yet.
func (e *Executor) State(ctx context.Context) (*models.State, error) {
	if err := e.loadState(ctx); err != nil {
		return nil, err
	}
	return e.state, nil
}

// prepare checks the export and loads state before the first remote write
func (e *Executor) prepare(ctx context.Context) error {
	if !e.validated {
		if err := e.export.Validate(); err != nil {
			return NewDomainError("validate_export", ErrIncompleteExport, err.Error())
		}
		e.validated = true
	}
	return e.loadState(ctx)
}

func (e *Executor) loadState(ctx context.Context) error {
	if e.state != nil {
		return nil
	}

	state, err := e.load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load execution state: %w", err)
	}
	if state == nil {
		state = models.NewState()
	}
	state.RunID = uuid.NewString()
	e.state = state

	e.log.Debug().
		Str("run_id", state.RunID).
		Int("tasks", state.Len()).
		Msg("Loaded execution state")
	return nil
}

// runTask moves a task through running to complete or error. A task that has
// already completed is not run again. State is persisted before the body runs
// and again once it has finished, whatever the outcome.
func (e *Executor) runTask(ctx context.Context, name string, body taskBody) (models.Result, error) {
	if previous, ok := e.state.Get(name); ok {
		switch previous.Status {
		case models.TaskComplete:
			e.log.Info().Msgf("Skipping %s task because it has already been completed", name)
			return previous.Result, nil
		case models.TaskRunning:
			e.log.Warn().Msgf("Task %s did not finish during a previous run, remote documents may already exist", name)
		}
	}

	e.log.Info().Msgf("Running %s task", name)
	e.state.Set(name, models.TaskState{Status: models.TaskRunning})
	if err := e.persist(ctx); err != nil {
		return nil, err
	}

	result, err := body(ctx)
	if err != nil {
		e.state.Set(name, models.TaskState{
			Status: models.TaskFailed,
			Error:  &models.TaskError{Kind: ErrorKind(err), Message: err.Error()},
		})
		e.log.Error().Err(err).Str("task", name).Msg("Task failed")
		if persistErr := e.persist(ctx); persistErr != nil {
			return nil, errors.Join(err, persistErr)
		}
		return nil, err
	}

	e.state.Set(name, models.TaskState{Status: models.TaskComplete, Result: result})
	if err := e.persist(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// persist writes the full state. It ignores cancellation of ctx so that the
// outcome of an interrupted task is still recorded.
func (e *Executor) persist(ctx context.Context) error {
	e.state.UpdatedAt = e.now()
	if err := e.write(context.WithoutCancel(ctx), e.state); err != nil {
		e.log.Error().Err(err).Msg("Failed to persist execution state")
		return fmt.Errorf("failed to persist execution state: %w", err)
	}
	return nil
}
