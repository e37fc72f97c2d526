package magiclink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ldirer/livestore-chat/cmd/identity"
	"github.com/ldirer/livestore-chat/cmd/internal/auth/credstore"
)

// Status is the outcome of a validation.
type Status string

const (
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
)

// Reason explains an invalid validation.
type Reason string

const (
	ReasonTokenNotFound Reason = "token_not_found"
	ReasonAlreadyUsed   Reason = "already_used"
	ReasonExpired       Reason = "expired"
)

// Validation is the tagged result of ValidateMagicToken.
// Email is set only when Status is StatusValid; Reason only when it is StatusInvalid.
type Validation struct {
	Status Status
	Email  string
	Reason Reason
}

// Valid reports whether the link was accepted.
func (v Validation) Valid() bool { return v.Status == StatusValid }

func invalidBecause(r Reason) Validation { return Validation{Status: StatusInvalid, Reason: r} }

// Service issues and validates magic links.
type Service struct {
	cfg     Config
	store   credstore.Store
	sender  Sender
	limiter *rateLimiter
	log     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithSender overrides the default LogSender.
func WithSender(sender Sender) Option {
	return func(s *Service) {
		if sender != nil {
			s.sender = sender
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService constructs a Service over store.
func NewService(cfg Config, store credstore.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("magiclink: nil store")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:     cfg,
		store:   store,
		limiter: newRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.sender == nil {
		s.sender = LogSender{Log: s.log}
	}
	return s, nil
}

// CreateMagicLink stores a fresh link for email and returns its URL.
func (s *Service) CreateMagicLink(ctx context.Context, email string, now time.Time) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrInvalidEmail
	}

	link, err := s.store.CreateMagicLink(ctx, email, now)
	if err != nil {
		return "", fmt.Errorf("magiclink: create: %w", err)
	}
	return s.linkURL(link.ID), nil
}

func (s *Service) linkURL(id string) string {
	return s.cfg.BaseURL + "/login?token=" + url.QueryEscape(id)
}

// ValidateMagicToken checks and consumes token.
//
// Checks run in order: unknown token, already used, expired. A valid link is
// consumed here; when a concurrent call consumes it first the result is already_used.
// The error is reserved for storage failures.
func (s *Service) ValidateMagicToken(ctx context.Context, token string, now time.Time) (Validation, error) {
	link, err := s.store.GetMagicLink(ctx, token)
	if err != nil {
		if errors.Is(err, credstore.ErrNotFound) {
			return invalidBecause(ReasonTokenNotFound), nil
		}
		return Validation{}, fmt.Errorf("magiclink: get: %w", err)
	}

	if link.Used() {
		return invalidBecause(ReasonAlreadyUsed), nil
	}
	if link.Expired(now) {
		return invalidBecause(ReasonExpired), nil
	}

	consumed, err := s.store.MarkMagicLinkUsed(ctx, token, now)
	if err != nil {
		if errors.Is(err, credstore.ErrNotFound) {
			return invalidBecause(ReasonTokenNotFound), nil
		}
		return Validation{}, fmt.Errorf("magiclink: consume: %w", err)
	}
	if !consumed {
		return invalidBecause(ReasonAlreadyUsed), nil
	}

	return Validation{Status: StatusValid, Email: link.Email}, nil
}

// SendOption customizes one SendLoginLink call.
type SendOption func(*sendOptions)

type sendOptions struct {
	beforeCreate func(ctx context.Context) error
}

// BeforeCreate runs fn once the request has passed the rate limit and before the
// link is created. An error from fn is returned unchanged and nothing is sent.
func BeforeCreate(fn func(ctx context.Context) error) SendOption {
	return func(o *sendOptions) { o.beforeCreate = fn }
}

// SendLoginLink creates a link for email and hands it to the Sender.
// When delivery fails the link is kept and ErrEmailCouldNotBeSent is returned.
func (s *Service) SendLoginLink(ctx context.Context, email string, now time.Time, opts ...SendOption) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrInvalidEmail
	}

	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}

	if ok, retry := s.limiter.allow(identity.NormalizeEmail(email), now); !ok {
		return RateLimitError{RetryAfter: retry}
	}
	if o.beforeCreate != nil {
		if err := o.beforeCreate(ctx); err != nil {
			return err
		}
	}

	link, err := s.CreateMagicLink(ctx, email, now)
	if err != nil {
		return err
	}

	body := "Click this link to log in: " + link
	if err := s.sender.Send(ctx, body, email); err != nil {
		s.log.WarnContext(ctx, "magiclink.send.fail", "err", err)
		return fmt.Errorf("%w: %v", ErrEmailCouldNotBeSent, err)
	}
	return nil
}
