package wxt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ErrNoValidFrame is returned when the attempt budget runs out without a
// frame satisfying the predicate. The caller should try again next cycle.
var ErrNoValidFrame = errors.New("no valid frame received within attempt budget")

// LineTransport is the part of the link the validator needs.
type LineTransport interface {
	// WriteCommand sends cmd followed by the line terminator.
	WriteCommand(cmd string) error
	// ReadLine returns nil, nil when nothing arrives before the timeout.
	ReadLine(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// Predicate decides whether the control-stripped text of a line is the
// reply being waited for.
type Predicate func(text string) bool

// HasPrefix accepts lines starting with any of the given prefixes.
func HasPrefix(prefixes ...string) Predicate {
	return func(text string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(text, p) {
				return true
			}
		}
		return false
	}
}

// RetryPolicy bounds how long the validator waits for a reply.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultRetryPolicy allows roughly three seconds per poll.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 30, Interval: 100 * time.Millisecond}
}

// Validator sends a query and reads until an acceptable frame arrives.
type Validator struct {
	transport   LineTransport
	policy      RetryPolicy
	readTimeout time.Duration
	logger      *zap.SugaredLogger

	wait func(ctx context.Context, d time.Duration) error
	now  func() time.Time
}

// NewValidator creates a Validator reading from t.
func NewValidator(t LineTransport, policy RetryPolicy, readTimeout time.Duration, logger *zap.SugaredLogger) *Validator {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Validator{
		transport:   t,
		policy:      policy,
		readTimeout: readTimeout,
		logger:      logger,
		wait:        sleepContext,
		now:         time.Now,
	}
}

// Policy returns the retry policy in effect.
func (v *Validator) Policy() RetryPolicy {
	return v.policy
}

// PollUntilValid sends query and returns the first line accepted by pred.
// ErrNoValidFrame is returned after MaxAttempts reads without a match.
func (v *Validator) PollUntilValid(ctx context.Context, query string, pred Predicate) (RawFrame, error) {
	if err := v.transport.WriteCommand(query); err != nil {
		return RawFrame{}, fmt.Errorf("sending query %q: %w", query, err)
	}

	for attempt := 1; attempt <= v.policy.MaxAttempts; attempt++ {
		line, err := v.transport.ReadLine(ctx, v.readTimeout)
		if err != nil {
			return RawFrame{}, err
		}
		captured := v.now()

		if reason := v.reject(line, pred); reason != "" {
			v.logger.Debugf("query %s attempt %d/%d: %s", query, attempt, v.policy.MaxAttempts, reason)
			if attempt == v.policy.MaxAttempts {
				break
			}
			if err := v.wait(ctx, v.policy.Interval); err != nil {
				return RawFrame{}, err
			}
			continue
		}

		return RawFrame{Bytes: line, Captured: captured}, nil
	}

	return RawFrame{}, ErrNoValidFrame
}

// ReadFollowing collects the rest of a multi-line reply. It reads at most max
// further lines and stops at the first read that times out. Lines pred rejects
// are logged and skipped.
func (v *Validator) ReadFollowing(ctx context.Context, pred Predicate, max int) ([]RawFrame, error) {
	var frames []RawFrame
	for i := 0; i < max; i++ {
		line, err := v.transport.ReadLine(ctx, v.readTimeout)
		if err != nil {
			return frames, err
		}
		if line == nil {
			break
		}
		captured := v.now()
		if reason := v.reject(line, pred); reason != "" {
			v.logger.Debugf("follow-up line %d: %s", i+1, reason)
			continue
		}
		frames = append(frames, RawFrame{Bytes: line, Captured: captured})
	}
	return frames, nil
}

func (v *Validator) reject(line []byte, pred Predicate) string {
	if len(line) == 0 {
		return "no data"
	}
	if !utf8.Valid(line) {
		return "reply is not text"
	}
	text := string(StripControl(line))
	if text == "" {
		return "empty line"
	}
	if !pred(text) {
		return fmt.Sprintf("unexpected reply %q", text)
	}
	return ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
