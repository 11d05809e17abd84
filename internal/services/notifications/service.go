// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/avast/retry-go"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/rs/zerolog"

	"github.com/pluginstore/registry/internal/domain"
)

// ErrNoTargets is returned when a reminder cannot go anywhere.
var ErrNoTargets = errors.New("no notification targets configured")

const (
	maxMessageLength = 420
	maxTitleLength   = 80

	defaultAttempts   = 3
	defaultRetryDelay = 2 * time.Second
)

// Reminder describes a license approaching its expiry date.
type Reminder struct {
	ExpiresOn    time.Time
	Key          string
	Email        string
	Plugin       string
	Edition      string
	RenewalPrice string
	AutoRenew    bool
}

// DispatchFunc sends one message to one shoutrrr URL.
type DispatchFunc func(ctx context.Context, url, title, message string) error

// Option configures a Service.
type Option func(*Service)

// WithDispatcher replaces the shoutrrr sender.
func WithDispatcher(fn DispatchFunc) Option {
	return func(s *Service) {
		if fn != nil {
			s.dispatch = fn
		}
	}
}

// WithRetry sets how often and how far apart each target is retried.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.attempts = attempts
		}
		s.retryDelay = delay
	}
}

// Service delivers renewal reminders to every configured shoutrrr URL.
type Service struct {
	logger     zerolog.Logger
	dispatch   DispatchFunc
	urls       []string
	attempts   uint
	retryDelay time.Duration
}

func NewService(urls []string, logger zerolog.Logger, opts ...Option) *Service {
	cleaned := make([]string, 0, len(urls))
	for _, url := range urls {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}

	s := &Service{
		urls:       cleaned,
		logger:     logger,
		dispatch:   send,
		attempts:   defaultAttempts,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HasTargets reports whether any notification URL is configured.
func (s *Service) HasTargets() bool {
	return len(s.urls) > 0
}

func ValidateURL(rawURL string) error {
	_, err := router.New(nil, rawURL)
	return err
}

// SendRenewalReminder delivers r to every target. The reminder counts as sent
// once any target accepted it; failed targets are logged. It returns
// ErrNoTargets when nothing is configured and a joined error when every
// target failed.
func (s *Service) SendRenewalReminder(ctx context.Context, r Reminder) error {
	if len(s.urls) == 0 {
		s.logger.Warn().
			Str("licenseKey", domain.MaskLicenseKey(r.Key)).
			Msg("renewal reminder not sent, no notification targets configured")
		return ErrNoTargets
	}

	title, message := formatReminder(r)

	var errs []error
	for _, url := range s.urls {
		if err := s.deliver(ctx, url, title, message); err != nil {
			s.logger.Error().
				Err(err).
				Str("target", domain.RedactURL(url)).
				Str("licenseKey", domain.MaskLicenseKey(r.Key)).
				Msg("failed to send renewal reminder")
			errs = append(errs, err)
		}
	}
	if len(errs) == len(s.urls) {
		return errors.Join(errs...)
	}

	s.logger.Debug().
		Str("licenseKey", domain.MaskLicenseKey(r.Key)).
		Int("targets", len(s.urls)).
		Int("failed", len(errs)).
		Msg("renewal reminder sent")
	return nil
}

// deliver retries transient failures with backoff and reports the last error.
func (s *Service) deliver(ctx context.Context, url, title, message string) error {
	return retry.Do(
		func() error { return s.dispatch(ctx, url, title, message) },
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.retryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debug().
				Err(err).
				Uint("attempt", n+1).
				Str("target", domain.RedactURL(url)).
				Msg("retrying renewal reminder delivery")
		}),
	)
}

func send(_ context.Context, url, title, message string) error {
	sender, err := router.New(nil, url)
	if err != nil {
		return err
	}

	params := types.Params{}
	if trimmed := strings.TrimSpace(title); trimmed != "" {
		params.SetTitle(truncateMessage(trimmed, maxTitleLength))
	}

	results := sender.Send(truncateMessage(message, maxMessageLength), &params)
	var errs []error
	for _, sendErr := range results {
		if sendErr != nil {
			errs = append(errs, sendErr)
		}
	}
	return errors.Join(errs...)
}

func formatReminder(r Reminder) (string, string) {
	title := "License expires soon"
	if plugin := strings.TrimSpace(r.Plugin); plugin != "" {
		title = fmt.Sprintf("%s license expires soon", plugin)
	}

	renewal := "manual"
	if r.AutoRenew {
		renewal = "automatic"
	}

	lines := []string{
		formatLine("License", domain.MaskLicenseKey(r.Key)),
		formatLine("Edition", r.Edition),
		formatLine("Contact", r.Email),
		formatLine("Expires", r.ExpiresOn.UTC().Format(time.DateOnly)),
		formatLine("Renewal price", r.RenewalPrice),
		formatLine("Renewal", renewal),
	}

	payload := make([]string, 0, len(lines))
	for _, line := range lines {
		if line != "" {
			payload = append(payload, line)
		}
	}
	return title, strings.Join(payload, "\n")
}

func formatLine(label, value string) string {
	trimmedLabel := strings.TrimSpace(label)
	trimmedValue := strings.TrimSpace(value)
	if trimmedLabel == "" || trimmedValue == "" {
		return ""
	}
	return fmt.Sprintf("%s: %s", trimmedLabel, trimmedValue)
}

func truncateMessage(value string, limit int) string {
	if limit <= 0 {
		return value
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if utf8.RuneCountInString(trimmed) <= limit {
		return trimmed
	}
	runes := []rune(trimmed)
	if limit <= 1 {
		return string(runes[:limit])
	}
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
