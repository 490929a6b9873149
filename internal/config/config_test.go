package config

import (
	"testing"
	"time"

	"github.com/berfenger/sem2mqtt/pkg/sem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Meter: MeterConfig{
			Address:        5,
			Password:       "12345",
			PollInterval:   30 * time.Second,
			CommandTimeout: time.Second,
			AuthTimeout:    time.Second,
			CommandDelay:   100 * time.Millisecond,
			LoginCommand:   "D",
			Sensors: []SensorConfig{
				{Command: "E"},
				{Command: "=M", Id: "Grid_Power"},
			},
		},
		Serial: SerialConfig{
			Device:      "/dev/ttyUSB0",
			BaudRate:    9600,
			DataBits:    8,
			StopBits:    1,
			Parity:      "n",
			ReadTimeout: 50 * time.Millisecond,
		},
	}
}

func TestValidateFillsDefaults(t *testing.T) {

	assert := assert.New(t)

	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(30*time.Second, cfg.Meter.CycleBudget)
	assert.Equal("energy_t1", cfg.Meter.Sensors[0].Id)
	assert.Equal("grid_power", cfg.Meter.Sensors[1].Id)
	assert.Equal("N", cfg.Serial.Parity)
}

func TestValidateRejects(t *testing.T) {

	cases := map[string]func(*Config){
		"address":        func(c *Config) { c.Meter.Address = 1000 },
		"password":       func(c *Config) { c.Meter.Password = "abc" },
		"poll interval":  func(c *Config) { c.Meter.PollInterval = 500 * time.Millisecond },
		"login command":  func(c *Config) { c.Meter.LoginCommand = "Z" },
		"sensor command": func(c *Config) { c.Meter.Sensors[0].Command = "Q" },
		"duplicate":      func(c *Config) { c.Meter.Sensors[1].Command = "E" },
		"duplicate id":   func(c *Config) { c.Meter.Sensors[1].Id = "energy_t1" },
		"sensor id":      func(c *Config) { c.Meter.Sensors[1].Id = "grid/power" },
		"parity":         func(c *Config) { c.Serial.Parity = "X" },
		"stop bits":      func(c *Config) { c.Serial.StopBits = 3 },
		"device":         func(c *Config) { c.Serial.Device = "" },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}

func TestValidateSimulatedSkipsSerial(t *testing.T) {

	cfg := validConfig()
	cfg.Serial = SerialConfig{Simulate: true}
	assert.NoError(t, cfg.Validate())
}

func TestValidateWrapsDriverErrors(t *testing.T) {

	cfg := validConfig()
	cfg.Meter.Sensors[1].Command = "E"
	assert.ErrorIs(t, cfg.Validate(), sem.ErrDuplicateCommand)

	cfg = validConfig()
	cfg.Meter.Address = -3
	assert.ErrorIs(t, cfg.Validate(), sem.ErrInvalidAddress)
}

func TestSensorIdForCommand(t *testing.T) {

	assert := assert.New(t)

	assert.Equal("energy_t3", SensorIdForCommand("V"))
	assert.Equal("power", SensorIdForCommand("=M"))
	assert.Equal("cmd_v1", SensorIdForCommand("V1"))
	assert.Equal("cmd__m2", SensorIdForCommand("=M2"))
}

func TestCheckMQTTTopic(t *testing.T) {

	topic, err := CheckMQTTTopic("SEM_Meter")
	require.NoError(t, err)
	assert.Equal(t, "sem_meter", topic)

	_, err = CheckMQTTTopic("sem/meter")
	assert.Error(t, err)
}
