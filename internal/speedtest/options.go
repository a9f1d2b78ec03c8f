package speedtest

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultTestDomain = "google.com"
	DefaultTimeout    = 500 * time.Millisecond
	DefaultGrace      = 100 * time.Millisecond
	DefaultBatchSize  = 100
	DefaultPort       = 53
)

// Options configures one run. Zero fields take the package defaults.
type Options struct {
	TestDomain string
	Timeout    time.Duration
	Grace      time.Duration
	BatchSize  int
	Port       int
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.TestDomain) == "" {
		o.TestDomain = DefaultTestDomain
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Grace == 0 {
		o.Grace = DefaultGrace
	}
	if o.BatchSize == 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	return o
}

func (o Options) validate() error {
	var errs []string

	if o.Timeout < 0 {
		errs = append(errs, "timeout must be > 0")
	}
	if o.Grace < 0 {
		errs = append(errs, "grace must be >= 0")
	}
	if o.BatchSize < 0 {
		errs = append(errs, "batch size must be > 0")
	}
	if o.Port < 0 || o.Port > 65535 {
		errs = append(errs, fmt.Sprintf("port %d out of range", o.Port))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Deadline is the shared per-batch deadline. It matches the per-probe bound.
func (o Options) Deadline() time.Duration {
	o = o.withDefaults()
	return o.Timeout + o.Grace
}

// Observer receives scheduling notifications. ProbeSettled calls are
// serialised but may come from any goroutine.
type Observer interface {
	BatchStarted(index, size int)
	ProbeSettled(completed, total int, ip string)
}

// ProgressFunc adapts a plain progress callback to Observer.
type ProgressFunc func(completed, total int, ip string)

func (f ProgressFunc) BatchStarted(int, int) {}

func (f ProgressFunc) ProbeSettled(completed, total int, ip string) {
	f(completed, total, ip)
}

type nopObserver struct{}

func (nopObserver) BatchStarted(int, int) {}
func (nopObserver) ProbeSettled(int, int, string) {}
