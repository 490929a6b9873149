package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/berfenger/sem2mqtt/internal/config"
	"github.com/berfenger/sem2mqtt/internal/core/domain"
	"github.com/berfenger/sem2mqtt/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensorDiscoveryMessage(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	client := CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)

	meter := domain.MeterDevice(cfg.MQTT.BaseTopic, cfg.Meter.Address)
	sensors := domain.MeterSensors(domain.IdDevice(meter), []config.SensorConfig{{Command: "E", Id: "energy_t1"}})
	require.Len(t, sensors, 1)

	msg := GenericSensorToHADiscoveryMessage(client, sensors[0])
	assert.Equal("sem/sensor/energy_t1/state", msg.StateTopic)
	assert.Equal("sem/bridge/state", msg.AvTopic)
	assert.Equal("kWh", msg.UnitOfMeasurement)
	assert.Equal(domain.STATE_CLASS_TOTAL_INCREASING, msg.StateClass)
	require.NotNil(t, msg.Precision)
	assert.Equal(uint(3), *msg.Precision)
	assert.Equal("homeassistant/sensor/"+meter.Id+"/energy_t1/config", HADiscoverySensorTopic(cfg.MQTT.HADiscoveryTopic, sensors[0]))

	connected := domain.MeterDiagnosticSensors(domain.IdDevice(meter))[0]
	msg = GenericSensorToHADiscoveryMessage(client, connected)
	assert.Equal("sem/binary_sensor/meter_connected/state", msg.StateTopic)
	assert.Equal(MQTT_PAYLOAD_ON, msg.PayloadOn)
	assert.Nil(msg.Precision)
}

func TestButtonDiscoveryMessage(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	client := CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)

	meter := domain.MeterDevice(cfg.MQTT.BaseTopic, cfg.Meter.Address)
	button := domain.MeterButtons(domain.IdDevice(meter))[0]

	msg := GenericButtonToHADiscoveryMessage(client, button)
	assert.Equal("sem/button/poll_now/press", msg.CommandTopic)
	assert.Equal(MQTT_PAYLOAD_PRESS, msg.PayloadPress)
	assert.Equal("homeassistant/button/"+meter.Id+"/poll_now/config", HADiscoveryButtonTopic(cfg.MQTT.HADiscoveryTopic, button))

	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.NotContains(string(payload), "state_topic")
	assert.Contains(string(payload), `"payload_press":"PRESS"`)
}
