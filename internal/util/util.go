package util

import (
	"time"

	"github.com/berfenger/sem2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Meter: config.MeterConfig{
			Address:        1,
			Password:       "00000",
			PollInterval:   time.Second,
			CommandTimeout: 200 * time.Millisecond,
			AuthTimeout:    200 * time.Millisecond,
			CommandDelay:   5 * time.Millisecond,
			LoginCommand:   "D",
			CycleBudget:    time.Second,
			Sensors: []config.SensorConfig{
				{Command: "E", Id: "energy_t1"},
				{Command: "W", Id: "energy_t2"},
				{Command: "=M", Id: "power"},
			},
		},
		Serial: config.SerialConfig{
			Simulate: true,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "sem",
			HADiscoveryTopic: "homeassistant",
		},
		Port: 8080,
	}
}
