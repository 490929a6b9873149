package sem

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DEFAULT_ADDRESS         = 1
	DEFAULT_PASSWORD        = "00000"
	DEFAULT_LOGIN_COMMAND   = "D"
	DEFAULT_COMMAND_TIMEOUT = 1000 * time.Millisecond
	DEFAULT_COMMAND_DELAY   = 100 * time.Millisecond
	PASSWORD_LENGTH         = 5
)

type DriverConfig struct {
	Address        int
	Password       string
	LoginCommand   string
	CommandTimeout time.Duration
	AuthTimeout    time.Duration
	CommandDelay   time.Duration
}

func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		Address:        DEFAULT_ADDRESS,
		Password:       DEFAULT_PASSWORD,
		LoginCommand:   DEFAULT_LOGIN_COMMAND,
		CommandTimeout: DEFAULT_COMMAND_TIMEOUT,
		AuthTimeout:    DEFAULT_COMMAND_TIMEOUT,
		CommandDelay:   DEFAULT_COMMAND_DELAY,
	}
}

// Driver polls one meter over a link. Configuration is frozen by the first
// poll tick; afterwards only OnPollTick and the read accessors are allowed.
type Driver struct {
	link      Link
	registry  *ValueRegistry
	session   *AuthSession
	scheduler *CommandScheduler
	config    DriverConfig
	configMu  sync.RWMutex
	started   atomic.Bool
	running   atomic.Bool
	logger    *zap.Logger
}

func NewDriver(link Link, cfg DriverConfig, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := ValidateAddress(cfg.Address); err != nil {
		return nil, err
	}
	if err := ValidatePassword(cfg.Password); err != nil {
		return nil, err
	}
	if _, ok := LookupLayout(cfg.LoginCommand); !ok {
		return nil, fmt.Errorf("%w: login command %q", ErrUnsupportedCommand, cfg.LoginCommand)
	}
	registry := NewValueRegistry()
	return &Driver{
		link:      link,
		registry:  registry,
		session:   NewAuthSession(cfg.LoginCommand, cfg.AuthTimeout, logger),
		scheduler: NewCommandScheduler(registry, cfg.CommandTimeout, cfg.CommandDelay, logger),
		config:    cfg,
		logger:    logger,
	}, nil
}

func ValidatePassword(password string) error {
	if len(password) != PASSWORD_LENGTH {
		return fmt.Errorf("%w: must be %d digits", ErrInvalidPassword, PASSWORD_LENGTH)
	}
	for _, c := range password {
		if c < '0' || c > '9' {
			return fmt.Errorf("%w: must be %d digits", ErrInvalidPassword, PASSWORD_LENGTH)
		}
	}
	return nil
}

func (d *Driver) SetAddress(address int) error {
	if d.started.Load() {
		return ErrDriverStarted
	}
	if err := ValidateAddress(address); err != nil {
		return err
	}
	d.configMu.Lock()
	d.config.Address = address
	d.configMu.Unlock()
	return nil
}

func (d *Driver) SetPassword(password string) error {
	if d.started.Load() {
		return ErrDriverStarted
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}
	d.configMu.Lock()
	d.config.Password = password
	d.configMu.Unlock()
	return nil
}

func (d *Driver) AddSensor(output Output, command string) error {
	if d.started.Load() {
		return ErrDriverStarted
	}
	if err := d.registry.Add(output, command); err != nil {
		return err
	}
	d.logger.Info("sensor added", zap.String("sensor", output.Name()), zap.String("command", command))
	return nil
}

// OnPollTick runs one poll cycle. A tick that arrives while a cycle is running
// returns ErrCycleInProgress. Per sensor failures are reported in the
// PollReport and never returned as the error.
func (d *Driver) OnPollTick(ctx context.Context) (*PollReport, error) {
	if !d.running.CompareAndSwap(false, true) {
		d.logger.Debug("poll tick skipped, cycle in progress")
		return nil, ErrCycleInProgress
	}
	defer d.running.Store(false)
	if d.started.CompareAndSwap(false, true) {
		d.DumpConfig()
	}

	if d.registry.Len() == 0 {
		d.logger.Warn("no sensors to poll")
		return &PollReport{Started: time.Now()}, nil
	}

	d.configMu.RLock()
	address, password := d.config.Address, d.config.Password
	d.configMu.RUnlock()

	if err := d.session.EnsureAuthenticated(ctx, d.link, address, password); err != nil {
		d.logger.Warn("meter authentication failed", zap.Int("address", address), zap.Error(err))
		if IsLinkError(err) {
			return &PollReport{Started: time.Now(), LinkErr: err}, err
		}
		return &PollReport{Started: time.Now()}, err
	}

	report := d.scheduler.PollOnce(ctx, d.link, address, password)
	if report.LinkErr != nil {
		d.logger.Warn("link error during poll, session invalidated", zap.Error(report.LinkErr))
		d.session.Invalidate()
	}
	d.logger.Debug("poll cycle finished",
		zap.Int("updated", len(report.Readings)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func (d *Driver) Open() error {
	return d.link.Open()
}

// Close releases the link. The session has to be established again after a
// new Open.
func (d *Driver) Close() error {
	d.session.Invalidate()
	return d.link.Close()
}

func (d *Driver) Latest() []Reading {
	return d.registry.Latest()
}

func (d *Driver) Bindings() []Binding {
	return d.registry.Bindings()
}

func (d *Driver) SessionState() SessionState {
	return d.session.State()
}

func (d *Driver) Address() int {
	d.configMu.RLock()
	defer d.configMu.RUnlock()
	return d.config.Address
}

func (d *Driver) DumpConfig() {
	d.configMu.RLock()
	defer d.configMu.RUnlock()
	d.logger.Info("SEM meter",
		zap.Int("address", d.config.Address),
		zap.String("password", "*****"),
		zap.String("login_command", d.config.LoginCommand),
		zap.Int("sensors", d.registry.Len()))
}
