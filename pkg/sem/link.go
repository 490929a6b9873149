package sem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/serial"
	"go.uber.org/zap"
)

// Link is the half-duplex byte transport between the driver and the meter.
// Receive returns one complete reply frame or ErrCommandTimeout.
type Link interface {
	Open() error
	Close() error
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
}

type SerialConfig struct {
	Device      string
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      string
	ReadTimeout time.Duration
	RS485       bool
}

type PortOpener func() (io.ReadWriteCloser, error)

// StreamLink frames replies out of any byte stream. The serial port is the
// production stream; tests plug in pipes.
type StreamLink struct {
	opener     PortOpener
	port       io.ReadWriteCloser
	scanner    FrameScanner
	pending    []byte
	mutex      sync.Mutex
	instrument []Instrument
	logger     *zap.Logger
}

func NewStreamLink(opener PortOpener, logger *zap.Logger, instrumentation *Instrument) *StreamLink {
	var inst []Instrument
	if logger == nil {
		logger = zap.NewNop()
	}
	if logInst := debugLoggerInstrumentation(logger); logInst != nil {
		inst = append(inst, *logInst)
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}
	return &StreamLink{
		opener:     opener,
		instrument: inst,
		logger:     logger,
	}
}

func NewSerialLink(cfg SerialConfig, logger *zap.Logger, instrumentation *Instrument) *StreamLink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return NewStreamLink(func() (io.ReadWriteCloser, error) {
		return serial.Open(&serial.Config{
			Address:  cfg.Device,
			BaudRate: cfg.BaudRate,
			DataBits: cfg.DataBits,
			StopBits: cfg.StopBits,
			Parity:   cfg.Parity,
			Timeout:  cfg.ReadTimeout,
			RS485: serial.RS485Config{
				Enabled: cfg.RS485,
			},
		})
	}, logger.With(zap.String("device", cfg.Device)), instrumentation)
}

func (l *StreamLink) Open() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.port != nil {
		return nil
	}
	port, err := l.opener()
	if err != nil {
		return err
	}
	l.port = port
	l.pending = nil
	l.scanner.Reset()
	return nil
}

func (l *StreamLink) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	return err
}

// Send drops whatever is left from a previous exchange and writes the frame.
func (l *StreamLink) Send(ctx context.Context, frame []byte) error {
	defer RecordTimer("Send", l.instrument)()
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.port == nil {
		return ErrLinkClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	l.pending = nil
	l.scanner.Reset()
	for written := 0; written < len(frame); {
		n, err := l.port.Write(frame[written:])
		if err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
		written += n
	}
	return nil
}

func (l *StreamLink) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	defer RecordTimer("Receive", l.instrument)()
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.port == nil {
		return nil, ErrLinkClosed
	}

	deadline := time.Now().Add(timeout)
	buf := make([]byte, MAX_FRAME_LENGTH)
	for {
		for len(l.pending) > 0 {
			b := l.pending[0]
			l.pending = l.pending[1:]
			frame, err := l.scanner.Feed(b)
			if err != nil {
				return nil, err
			}
			if frame != nil {
				return frame, nil
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			return nil, ErrCommandTimeout
		}
		n, err := l.port.Read(buf)
		if n > 0 {
			l.pending = append(l.pending, buf[:n]...)
		}
		if err != nil && !errors.Is(err, serial.ErrTimeout) {
			return nil, fmt.Errorf("read frame: %w", err)
		}
	}
}
