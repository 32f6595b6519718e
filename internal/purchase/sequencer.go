// Package purchase drives the ordered steps of a purchase attempt. Every step
// failure is caught at the step boundary and downgrades the attempt to manual
// intervention; nothing in here is allowed to kill the watcher.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aryanr/restock-watcher/internal/match"
	"github.com/aryanr/restock-watcher/internal/notify"
	"github.com/aryanr/restock-watcher/internal/probe"
	"github.com/google/uuid"
)

// ErrNameMismatch is set on an attempt aborted at the pre-cart checkpoint.
var ErrNameMismatch = errors.New("product name mismatch")

// State is one position in the purchase sequence.
type State string

const (
	StateIdle                 State = "idle"
	StateVerifyingProduct     State = "verifying_product"
	StateAddingToCart         State = "adding_to_cart"
	StateOpeningCart          State = "opening_cart"
	StateVerifyingCart        State = "verifying_cart"
	StateProceedingToCheckout State = "proceeding_to_checkout"
	StateSelectingPayment     State = "selecting_payment"
	StateAwaitingConfirmation State = "awaiting_confirmation"

	StateCompleted          State = "completed"
	StateAborted            State = "aborted"
	StateManualIntervention State = "manual_intervention_required"
)

// Terminal reports whether the machine has finished.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted || s == StateManualIntervention
}

// StepResult records the outcome of one step within an attempt.
type StepResult struct {
	Step    string `json:"step_name"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Attempt is the ephemeral trace of one purchase run. It is never persisted
// beyond the run that produced it.
type Attempt struct {
	ID        string
	StartedAt time.Time
	Steps     []StepResult
	Final     State
	// ProductMatch is the pre-cart checkpoint decision, CartMatch the
	// post-cart one. CartMatch never blocks the attempt.
	ProductMatch *match.Decision
	CartMatch    *match.Decision
	Err          error
}

func (a *Attempt) record(step string, err error) {
	res := StepResult{Step: step, Success: err == nil}
	if err != nil {
		res.Error = err.Error()
	}
	a.Steps = append(a.Steps, res)
}

// Selectors are the actuation targets for each step, tried in order. Defaults
// match the Blinkit storefront; override per site via config.
type Selectors struct {
	AddToCart    []string
	OpenCart     []string
	CartItemName []string
	Checkout     []string
	Payment      []string
	Confirm      []string
}

func DefaultSelectors() Selectors {
	return Selectors{
		AddToCart: []string{
			"text=ADD",
			"text=Add",
			".add-to-cart",
			"button:has-text('Add')",
		},
		OpenCart: []string{
			"text=My Cart",
			"[class*='CartButton__Container']",
			"button[class*='CartButton']",
		},
		CartItemName: []string{
			".cart-item-name",
			"[data-testid='cart-item-name']",
			"[class*='CartItem'] .product-name",
			".cart-product-title",
		},
		Checkout: []string{
			"button:has-text('Proceed to Pay')",
			"button:has-text('Proceed To Pay')",
		},
		Payment: []string{
			"[aria-label='Cash']",
			"div[role='button'][aria-label='Cash']",
			"[title='Cash']",
			"text=Cash",
		},
		Confirm: []string{
			"button:has-text('Pay Now')",
			"button:has-text('Pay now')",
			"button:has-text('Place Order')",
		},
	}
}

// Options tune the sequencer's pacing.
type Options struct {
	// StepPause is the settle time after each actuation.
	StepPause time.Duration
	// ConfirmWait bounds how long the machine waits for the payment
	// confirmation control before parking in manual intervention.
	ConfirmWait time.Duration
	// ConfirmPoll is the re-check interval inside the confirmation wait.
	ConfirmPoll time.Duration
}

func DefaultOptions() Options {
	return Options{
		StepPause:   2 * time.Second,
		ConfirmWait: 20 * time.Second,
		ConfirmPoll: 2 * time.Second,
	}
}

// Sequencer runs one purchase attempt over a page probe.
type Sequencer struct {
	probe     probe.Probe
	selectors Selectors
	notifier  notify.Notifier
	opts      Options
	logger    *slog.Logger

	// sleep is swapped out in tests so attempts run instantly.
	sleep func(time.Duration)
}

func NewSequencer(p probe.Probe, n notify.Notifier, opts Options, logger *slog.Logger) *Sequencer {
	if n == nil {
		n = notify.Noop{}
	}
	return &Sequencer{
		probe:     p,
		selectors: DefaultSelectors(),
		notifier:  n,
		opts:      opts,
		logger:    logger.With("component", "sequencer"),
		sleep:     time.Sleep,
	}
}

// SetSelectors replaces the default actuation targets.
func (s *Sequencer) SetSelectors(sel Selectors) {
	s.selectors = sel
}

// SelectorsFromLists builds a selector set from configured override lists.
// An empty list keeps the built-in default for that step.
func SelectorsFromLists(addToCart, openCart, cartItemName, checkout, payment, confirm []string) Selectors {
	sel := DefaultSelectors()
	if len(addToCart) > 0 {
		sel.AddToCart = addToCart
	}
	if len(openCart) > 0 {
		sel.OpenCart = openCart
	}
	if len(cartItemName) > 0 {
		sel.CartItemName = cartItemName
	}
	if len(checkout) > 0 {
		sel.Checkout = checkout
	}
	if len(payment) > 0 {
		sel.Payment = payment
	}
	if len(confirm) > 0 {
		sel.Confirm = confirm
	}
	return sel
}

// Run executes one attempt against the product currently on the page.
// expectedName gates the pre-cart checkpoint; productURL and location only
// feed the cart notification.
func (s *Sequencer) Run(ctx context.Context, expectedName, productURL, location string) *Attempt {
	attempt := &Attempt{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
		Final:     StateIdle,
	}

	s.logger.Info("purchase attempt started", "attempt_id", attempt.ID, "expected", expectedName)

	// Checkpoint (a): verify the page shows the product we have been
	// watching. A stale or redirected page aborts before anything is clicked.
	attempt.Final = StateVerifyingProduct
	observed := probe.ExtractTitle(s.probe)
	dec := match.Match(expectedName, observed)
	attempt.ProductMatch = &dec
	s.logger.Info("product checkpoint", "observed", observed, "similarity", dec.Similarity, "passed", dec.Passed)

	if expectedName != "" && !dec.Passed {
		attempt.record(string(StateVerifyingProduct), fmt.Errorf("%w: similarity %.2f below %.2f", ErrNameMismatch, dec.Similarity, match.Threshold))
		attempt.Err = ErrNameMismatch
		attempt.Final = StateAborted
		s.logger.Warn("aborting attempt, low-confidence match", "similarity", dec.Similarity)
		return attempt
	}
	attempt.record(string(StateVerifyingProduct), nil)

	if ctx.Err() != nil {
		attempt.Err = ctx.Err()
		attempt.Final = StateAborted
		return attempt
	}

	// Add to cart. No known actuation target means a human has to finish.
	attempt.Final = StateAddingToCart
	if err := s.clickFirst(s.selectors.AddToCart); err != nil {
		attempt.record(string(StateAddingToCart), err)
		attempt.Final = StateManualIntervention
		s.logger.Error("add-to-cart control not actuated", "error", err)
		return attempt
	}
	attempt.record(string(StateAddingToCart), nil)
	s.sleep(s.opts.StepPause)

	// Open the cart. Best effort: the drawer may already be open.
	attempt.Final = StateOpeningCart
	if err := s.clickFirst(s.selectors.OpenCart); err != nil {
		s.logger.Warn("could not open cart", "error", err)
		attempt.record(string(StateOpeningCart), err)
	} else {
		attempt.record(string(StateOpeningCart), nil)
		s.sleep(s.opts.StepPause)
	}

	if err := s.notifier.CartAlert(ctx, expectedName, productURL, location); err != nil {
		s.logger.Warn("cart notification failed", "error", err)
	}

	// Checkpoint (b): verify what actually landed in the cart. A mismatch
	// here only logs; the cart is not rolled back automatically.
	attempt.Final = StateVerifyingCart
	cartName := s.cartItemName()
	if expectedName != "" && cartName != "" {
		cartDec := match.Match(expectedName, cartName)
		attempt.CartMatch = &cartDec
		if !cartDec.Passed {
			s.logger.Warn("cart item does not match expected product, proceeding anyway",
				"expected", expectedName, "in_cart", cartName, "similarity", cartDec.Similarity)
		}
	}
	attempt.record(string(StateVerifyingCart), nil)

	// Checkout and payment selection are degraded-confidence transitions: a
	// missing control is logged but never halts the machine.
	attempt.Final = StateProceedingToCheckout
	if err := s.clickFirst(s.selectors.Checkout); err != nil {
		s.logger.Warn("checkout control not found, continuing", "error", err)
		attempt.record(string(StateProceedingToCheckout), err)
	} else {
		attempt.record(string(StateProceedingToCheckout), nil)
		s.sleep(s.opts.StepPause)
	}

	attempt.Final = StateSelectingPayment
	if err := s.clickFirst(s.selectors.Payment); err != nil {
		s.logger.Warn("payment option not found, continuing", "error", err)
		attempt.record(string(StateSelectingPayment), err)
	} else {
		attempt.record(string(StateSelectingPayment), nil)
		s.sleep(s.opts.StepPause)
	}

	// Confirmation is the only bounded wait in the machine. If the control
	// never shows up the attempt parks here and the human finishes it.
	attempt.Final = StateAwaitingConfirmation
	if s.awaitConfirmation(ctx) {
		attempt.record(string(StateAwaitingConfirmation), nil)
		attempt.Final = StateCompleted
		s.logger.Info("purchase attempt completed", "attempt_id", attempt.ID)
		return attempt
	}

	attempt.record(string(StateAwaitingConfirmation), errors.New("confirmation control not actuated within wait window"))
	attempt.Final = StateManualIntervention
	s.logger.Warn("confirmation not reached, manual intervention required", "attempt_id", attempt.ID)
	return attempt
}

// clickFirst actuates the first visible selector in the list.
func (s *Sequencer) clickFirst(selectors []string) error {
	for _, sel := range selectors {
		if !s.probe.IsVisible(sel) {
			continue
		}
		if err := s.probe.Click(sel); err != nil {
			s.logger.Debug("click failed", "selector", sel, "error", err)
			continue
		}
		s.logger.Info("clicked", "selector", sel)
		return nil
	}
	return fmt.Errorf("%w: no visible target among %d selectors", probe.ErrSelectorMiss, len(selectors))
}

func (s *Sequencer) cartItemName() string {
	for _, sel := range s.selectors.CartItemName {
		text, err := s.probe.TextOf(sel)
		if err != nil {
			continue
		}
		if text != "" {
			return text
		}
	}
	return ""
}

func (s *Sequencer) awaitConfirmation(ctx context.Context) bool {
	deadline := time.Now().Add(s.opts.ConfirmWait)
	for {
		if ctx.Err() != nil {
			return false
		}
		if err := s.clickFirst(s.selectors.Confirm); err == nil {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		s.sleep(s.opts.ConfirmPoll)
	}
}
