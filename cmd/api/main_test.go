package main

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfigFromEnv(t *testing.T) {

	assert := assert.New(t)

	viper.Reset()
	defer viper.Reset()

	t.Setenv("SEM_METER_ADDRESS", "7")
	t.Setenv("SEM_METER_PASSWORD", "12345")
	t.Setenv("SEM_METER_POLL_INTERVAL", "10s")
	t.Setenv("SEM_SERIAL_SIMULATE", "true")
	t.Setenv("SEM_MQTT_BASE_TOPIC", "meter_bridge")
	t.Setenv("SEM_PORT", "9999")

	cfg, err := initConfig()
	require.NoError(t, err)
	assert.Equal(7, cfg.Meter.Address)
	assert.Equal("12345", cfg.Meter.Password)
	assert.Equal(10*time.Second, cfg.Meter.PollInterval)
	assert.Equal(10*time.Second, cfg.Meter.CycleBudget)
	assert.True(cfg.Serial.Simulate)
	assert.Equal("meter_bridge", cfg.MQTT.BaseTopic)
	assert.Equal(uint(9999), cfg.Port)
}

func TestInitConfigDefaults(t *testing.T) {

	assert := assert.New(t)

	viper.Reset()
	defer viper.Reset()

	cfg, err := initConfig()
	require.NoError(t, err)
	assert.Equal(1, cfg.Meter.Address)
	assert.Equal("00000", cfg.Meter.Password)
	assert.Equal(30*time.Second, cfg.Meter.PollInterval)
	assert.Equal("/dev/ttyUSB0", cfg.Serial.Device)
	require.Len(t, cfg.Meter.Sensors, 2)
	assert.Equal("energy_t1", cfg.Meter.Sensors[0].Id)
	assert.Equal("power", cfg.Meter.Sensors[1].Id)
}

func TestInitConfigRejectsBadAddress(t *testing.T) {

	viper.Reset()
	defer viper.Reset()

	t.Setenv("SEM_METER_ADDRESS", "1000")

	_, err := initConfig()
	assert.Error(t, err)
}
