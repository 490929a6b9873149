package sem

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type SessionState int

const (
	Unauthenticated SessionState = iota
	Authenticating
	Authenticated
)

func (s SessionState) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

// AuthSession tracks whether the meter has accepted our password. The meter
// only answers the login command when the password in the frame matches.
type AuthSession struct {
	loginCommand string
	timeout      time.Duration
	state        SessionState
	mutex        sync.RWMutex
	logger       *zap.Logger
}

func NewAuthSession(loginCommand string, timeout time.Duration, logger *zap.Logger) *AuthSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthSession{
		loginCommand: loginCommand,
		timeout:      timeout,
		state:        Unauthenticated,
		logger:       logger,
	}
}

func (s *AuthSession) State() SessionState {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.state
}

func (s *AuthSession) setState(state SessionState) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.state = state
}

func (s *AuthSession) Invalidate() {
	s.setState(Unauthenticated)
}

func (s *AuthSession) EnsureAuthenticated(ctx context.Context, link Link, address int, password string) error {
	if s.State() == Authenticated {
		return nil
	}
	s.setState(Authenticating)
	if err := s.login(ctx, link, address, password); err != nil {
		s.setState(Unauthenticated)
		return err
	}
	s.setState(Authenticated)
	s.logger.Info("meter session authenticated", zap.Int("address", address))
	return nil
}

func (s *AuthSession) login(ctx context.Context, link Link, address int, password string) error {
	if s.loginCommand == "" {
		return fmt.Errorf("%w: empty login command", ErrUnsupportedCommand)
	}
	frame, err := Encode(address, password+s.loginCommand)
	if err != nil {
		return err
	}
	if err := link.Send(ctx, frame); err != nil {
		return err
	}
	deadline := time.Now().Add(s.timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrAuthTimeout
		}
		raw, err := link.Receive(ctx, remaining)
		if errors.Is(err, ErrCommandTimeout) {
			return ErrAuthTimeout
		}
		if IsFrameError(err) {
			return fmt.Errorf("%w: %w", ErrAuthRejected, err)
		}
		if err != nil {
			return err
		}
		reply, err := Decode(raw)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrAuthRejected, err)
		}
		// other meters share the bus
		if !reply.IsReply() || reply.Address != address {
			s.logger.Debug("discarding unrelated frame", zap.ByteString("frame", raw))
			continue
		}
		if reply.Echo() != s.loginCommand[0] {
			return fmt.Errorf("%w: unexpected echo %q", ErrAuthRejected, reply.Echo())
		}
		return nil
	}
}
