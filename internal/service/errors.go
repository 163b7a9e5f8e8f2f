package service

import (
	"errors"
	"fmt"
	"strings"

	"snapkit/internal/pool"
)

var (
	ErrInsufficientQuota  = errors.New("free generations exhausted, add your own API key to continue")
	ErrPoolExhausted      = pool.ErrExhausted
	ErrRateLimited        = errors.New("generation service is rate limited")
	ErrUpstreamFailure    = errors.New("generation failed")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
)

// QuotaError 额度用完时返回，携带当前账本数值
type QuotaError struct {
	Used  int
	Limit int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s (%d/%d used)", ErrInsufficientQuota.Error(), e.Used, e.Limit)
}

func (e *QuotaError) Unwrap() error {
	return ErrInsufficientQuota
}

// GenerationError describes a failed generation. It matches both its Kind
// sentinel and the underlying cause with errors.Is.
type GenerationError struct {
	Kind      error
	Source    string
	Attempts  int
	PoolKeyID uint
	Err       error
}

func (e *GenerationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Source != "" {
		fmt.Fprintf(&b, " (source=%s, attempts=%d)", e.Source, e.Attempts)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *GenerationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
