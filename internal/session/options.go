package session

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/capitalize-ai/chatcore/internal/tombstone"
	"github.com/capitalize-ai/chatcore/pkg/logger"
)

// Identity is the user the session acts for.
type Identity struct {
	// ID is the profile id used in participant lists.
	ID       int64
	Username string
}

// Options tunes a Controller. Zero values take defaults.
type Options struct {
	// PollInterval is how often the directory is refreshed.
	PollInterval time.Duration
	// Grace is how long a deleted thread stays suppressed.
	Grace time.Duration
	// ReloadEvery and ReloadBurst rate-limit forced reloads after failures.
	ReloadEvery time.Duration
	ReloadBurst int
	// VerifyDeletes issues a read-after-delete check.
	VerifyDeletes bool
	Policy        RequestPolicy
	Now           func() time.Time
	Logger        *logger.Logger
	// UpdateBuffer is the per-subscriber channel size.
	UpdateBuffer int
}

const (
	DefaultPollInterval = 5 * time.Second
	DefaultReloadEvery  = 2 * time.Second
)

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Grace <= 0 {
		o.Grace = tombstone.DefaultGrace
	}
	if o.ReloadEvery <= 0 {
		o.ReloadEvery = DefaultReloadEvery
	}
	if o.ReloadBurst <= 0 {
		o.ReloadBurst = 1
	}
	if o.Policy == nil {
		o.Policy = UntrustedRequestPolicy{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = logger.Global()
	}
	if o.UpdateBuffer <= 0 {
		o.UpdateBuffer = 32
	}
	return o
}

func (o Options) limiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(o.ReloadEvery), o.ReloadBurst)
}
