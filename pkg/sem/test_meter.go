package sem

import (
	"context"
	"sync"
	"time"
)

// TestMeter is an in-memory meter that answers request frames with scripted
// reply bodies. It stands in for the serial link in tests and in simulation mode.
type TestMeter struct {
	address  int
	password string
	replies  map[string]string
	silent   map[string]bool
	garbled  map[string]bool
	sendErr  error
	stall    time.Duration
	queue    [][]byte
	strays   [][]byte
	sent     []string
	opened   bool
	mutex    sync.Mutex
}

func NewTestMeter(address int, password string) *TestMeter {
	m := &TestMeter{
		address:  address,
		password: password,
		replies:  make(map[string]string),
		silent:   make(map[string]bool),
		garbled:  make(map[string]bool),
	}
	m.replies["D"] = "D1123456170526"
	return m
}

// NewSimulatedMeter answers every supported code with plausible values.
func NewSimulatedMeter(address int, password string) *TestMeter {
	m := NewTestMeter(address, password)
	m.Reply("E", "E01234567")
	m.Reply("W", "W00765432")
	m.Reply("V", "V00001234")
	m.Reply("U", "U00000000")
	m.Reply("=M", "=M0123")
	return m
}

// Reply sets the reply body for command, echo included ("V00012345").
func (m *TestMeter) Reply(command string, body string) *TestMeter {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.replies[command] = body
	delete(m.silent, command)
	return m
}

func (m *TestMeter) Silence(command string) *TestMeter {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.silent[command] = true
	return m
}

// Garble makes the replies to command fail checksum verification.
func (m *TestMeter) Garble(command string) *TestMeter {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.garbled[command] = true
	return m
}

func (m *TestMeter) FailSend(err error) *TestMeter {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sendErr = err
	return m
}

// Stall delays every reply by d.
func (m *TestMeter) Stall(d time.Duration) *TestMeter {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.stall = d
	return m
}

// Stray makes a reply from another meter on the bus arrive ahead of the
// next reply.
func (m *TestMeter) Stray(address int, body string) *TestMeter {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if frame, err := EncodeReply(address, body); err == nil {
		m.strays = append(m.strays, frame)
	}
	return m
}

// Sent returns the commands received so far, password stripped.
func (m *TestMeter) Sent() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]string(nil), m.sent...)
}

func (m *TestMeter) Open() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.opened = true
	return nil
}

func (m *TestMeter) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.opened = false
	return nil
}

func (m *TestMeter) Send(ctx context.Context, frame []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.queue = m.strays
	m.strays = nil
	request, err := Decode(frame)
	if err != nil || request.IsReply() || request.Address != m.address {
		return nil
	}
	if len(request.Body) <= PASSWORD_LENGTH {
		return nil
	}
	password, command := request.Body[:PASSWORD_LENGTH], request.Body[PASSWORD_LENGTH:]
	m.sent = append(m.sent, command)

	body, ok := m.replies[command]
	if password != m.password {
		body, ok = "?", true
	}
	if !ok || m.silent[command] {
		return nil
	}
	reply, err := EncodeReply(m.address, body)
	if err != nil {
		return err
	}
	if m.garbled[command] {
		reply[len(reply)-2] ^= 0x01
	}
	m.queue = append(m.queue, reply)
	return nil
}

func (m *TestMeter) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	m.mutex.Lock()
	stall := m.stall
	m.mutex.Unlock()
	if stall > 0 && !sleep(ctx, min(stall, timeout)) {
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if !m.opened {
		return nil, ErrLinkClosed
	}
	if stall > timeout || len(m.queue) == 0 {
		return nil, ErrCommandTimeout
	}
	reply := m.queue[0]
	m.queue = m.queue[1:]
	return reply, nil
}
