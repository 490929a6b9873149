package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/berfenger/sem2mqtt/pkg/sem"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Meter    MeterConfig  `mapstructure:"meter"`
	Serial   SerialConfig `mapstructure:"serial"`
	MQTT     MQTTConfig   `mapstructure:"mqtt"`
	Port     uint         `mapstructure:"port"`
	HttpLog  bool         `mapstructure:"http_log"`
}

type MeterConfig struct {
	Address        int            `mapstructure:"address"`
	Password       string         `mapstructure:"password"`
	PollInterval   time.Duration  `mapstructure:"poll_interval"`
	CommandTimeout time.Duration  `mapstructure:"command_timeout"`
	AuthTimeout    time.Duration  `mapstructure:"auth_timeout"`
	CommandDelay   time.Duration  `mapstructure:"command_delay"`
	LoginCommand   string         `mapstructure:"login_command"`
	CycleBudget    time.Duration  `mapstructure:"cycle_budget"`
	Sensors        []SensorConfig `mapstructure:"sensors"`
}

type SensorConfig struct {
	Command     string `mapstructure:"command"`
	Id          string `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	Unit        string `mapstructure:"unit"`
	DeviceClass string `mapstructure:"device_class"`
	StateClass  string `mapstructure:"state_class"`
	Decimals    *uint  `mapstructure:"decimals"`
}

type SerialConfig struct {
	Device      string        `mapstructure:"device"`
	BaudRate    int           `mapstructure:"baud_rate"`
	DataBits    int           `mapstructure:"data_bits"`
	StopBits    int           `mapstructure:"stop_bits"`
	Parity      string        `mapstructure:"parity"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	RS485       bool          `mapstructure:"rs485"`
	Simulate    bool          `mapstructure:"simulate"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func (c MeterConfig) DriverConfig() sem.DriverConfig {
	return sem.DriverConfig{
		Address:        c.Address,
		Password:       c.Password,
		LoginCommand:   c.LoginCommand,
		CommandTimeout: c.CommandTimeout,
		AuthTimeout:    c.AuthTimeout,
		CommandDelay:   c.CommandDelay,
	}
}

func (c SerialConfig) LinkConfig() sem.SerialConfig {
	return sem.SerialConfig{
		Device:      c.Device,
		BaudRate:    c.BaudRate,
		DataBits:    c.DataBits,
		StopBits:    c.StopBits,
		Parity:      c.Parity,
		ReadTimeout: c.ReadTimeout,
		RS485:       c.RS485,
	}
}

// Validate checks the meter and serial settings before anything touches the port.
func (c *Config) Validate() error {
	m := &c.Meter
	if err := sem.ValidateAddress(m.Address); err != nil {
		return fmt.Errorf("config param meter.address: %w", err)
	}
	if err := sem.ValidatePassword(m.Password); err != nil {
		return fmt.Errorf("config param meter.password: %w", err)
	}
	if m.PollInterval < time.Second {
		return errors.New("config param meter.poll_interval should be >= 1s")
	}
	if m.CommandTimeout <= 0 || m.AuthTimeout <= 0 {
		return errors.New("config params meter.command_timeout and meter.auth_timeout should be > 0")
	}
	if m.CommandDelay < 0 {
		return errors.New("config param meter.command_delay should be >= 0")
	}
	if _, ok := sem.LookupLayout(m.LoginCommand); !ok {
		return fmt.Errorf("config param meter.login_command: %w: %q", sem.ErrUnsupportedCommand, m.LoginCommand)
	}
	if m.CycleBudget <= 0 {
		m.CycleBudget = m.PollInterval
	}

	seenIds := make(map[string]bool)
	seenCommands := make(map[string]bool)
	for i := range m.Sensors {
		s := &m.Sensors[i]
		if _, ok := sem.LookupLayout(s.Command); !ok {
			return fmt.Errorf("config param meter.sensors[%d].command: %w: %q", i, sem.ErrUnsupportedCommand, s.Command)
		}
		if seenCommands[s.Command] {
			return fmt.Errorf("config param meter.sensors[%d].command: %w: %q", i, sem.ErrDuplicateCommand, s.Command)
		}
		seenCommands[s.Command] = true
		if s.Id == "" {
			s.Id = SensorIdForCommand(s.Command)
		}
		id, err := CheckMQTTTopic(s.Id)
		if err != nil {
			return fmt.Errorf("config param meter.sensors[%d].id: %w", i, err)
		}
		if seenIds[id] {
			return fmt.Errorf("config param meter.sensors[%d].id: duplicate id %q", i, id)
		}
		seenIds[id] = true
		s.Id = id
	}

	if !c.Serial.Simulate {
		if c.Serial.Device == "" {
			return errors.New("config param serial.device is required")
		}
		if c.Serial.BaudRate <= 0 {
			return errors.New("config param serial.baud_rate should be > 0")
		}
		if c.Serial.DataBits < 5 || c.Serial.DataBits > 8 {
			return errors.New("config param serial.data_bits should be in 5..8")
		}
		if c.Serial.StopBits != 1 && c.Serial.StopBits != 2 {
			return errors.New("config param serial.stop_bits should be 1 or 2")
		}
		c.Serial.Parity = strings.ToUpper(c.Serial.Parity)
		if c.Serial.Parity != "N" && c.Serial.Parity != "E" && c.Serial.Parity != "O" {
			return errors.New("config param serial.parity should be one of N, E, O")
		}
		if c.Serial.ReadTimeout <= 0 {
			return errors.New("config param serial.read_timeout should be > 0")
		}
	}
	return nil
}

// SensorIdForCommand derives a topic-safe sensor id for a command code.
func SensorIdForCommand(command string) string {
	switch command {
	case "E":
		return "energy_t1"
	case "W":
		return "energy_t2"
	case "V":
		return "energy_t3"
	case "U":
		return "energy_t4"
	case "=M":
		return "power"
	case "D":
		return "clock"
	}
	var b strings.Builder
	b.WriteString("cmd_")
	for _, c := range strings.ToLower(command) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
