package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/berfenger/sem2mqtt/internal/config"
	"github.com/berfenger/sem2mqtt/pkg/sem"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE        = "bridge"
	SENSOR_ID_METER_CONNECTED     = "meter_connected"
	SENSOR_ID_LAST_CYCLE_DURATION = "last_cycle_duration"
	SENSOR_ID_SENSORS_UPDATED     = "sensors_updated"
	BUTTON_ID_POLL_NOW            = "poll_now"
	STATE_CLASS_MEASUREMENT       = "measurement"
	STATE_CLASS_TOTAL_INCREASING  = "total_increasing"
	DEVICE_CLASS_ENERGY           = "energy"
	DEVICE_CLASS_POWER            = "power"
	DEVICE_CLASS_DURATION         = "duration"
	DEVICE_CLASS_CONNECTIVITY     = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC       = "diagnostic"
	ENTITY_CLASS_CONFIG           = "config"
	SENSOR_TYPE_SENSOR            = "sensor"
	SENSOR_TYPE_BINARY            = "binary_sensor"
)

// SensorMeta is the presentation of a meter value in Home Assistant.
type SensorMeta struct {
	Name        string
	Unit        string
	DeviceClass string
	StateClass  string
	Icon        string
	Decimals    uint
}

var commandMeta = map[string]SensorMeta{
	"E":  {Name: "Energy T1", Unit: "kWh", DeviceClass: DEVICE_CLASS_ENERGY, StateClass: STATE_CLASS_TOTAL_INCREASING, Decimals: 3},
	"W":  {Name: "Energy T2", Unit: "kWh", DeviceClass: DEVICE_CLASS_ENERGY, StateClass: STATE_CLASS_TOTAL_INCREASING, Decimals: 3},
	"V":  {Name: "Energy T3", Unit: "kWh", DeviceClass: DEVICE_CLASS_ENERGY, StateClass: STATE_CLASS_TOTAL_INCREASING, Decimals: 3},
	"U":  {Name: "Energy T4", Unit: "kWh", DeviceClass: DEVICE_CLASS_ENERGY, StateClass: STATE_CLASS_TOTAL_INCREASING, Decimals: 3},
	"=M": {Name: "Active power", Unit: "W", DeviceClass: DEVICE_CLASS_POWER, StateClass: STATE_CLASS_MEASUREMENT, Decimals: 0},
	"D":  {Name: "Meter clock", Unit: "s", Icon: "mdi:clock-outline", Decimals: 0},
}

// SensorMetaFor merges the configured overrides of a sensor with the defaults
// of its command layout.
func SensorMetaFor(s config.SensorConfig) SensorMeta {
	meta, ok := commandMeta[s.Command]
	if !ok {
		if layout, found := sem.LookupLayout(s.Command); found {
			meta = commandMeta[layout.Code]
			meta.Name = fmt.Sprintf("%s (%s)", meta.Name, s.Command)
		}
	}
	if s.Name != "" {
		meta.Name = s.Name
	}
	if s.Unit != "" {
		meta.Unit = s.Unit
	}
	if s.DeviceClass != "" {
		meta.DeviceClass = s.DeviceClass
	}
	if s.StateClass != "" {
		meta.StateClass = s.StateClass
	}
	if s.Decimals != nil {
		meta.Decimals = *s.Decimals
	}
	return meta
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("sem_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "sem2mqtt",
		Model:        "SEM bridge",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("SEM bridge %s", md5HashShort(baseTopic)),
	}
}

func MeterDevice(baseTopic string, address int) Device {
	return Device{
		Id:           fmt.Sprintf("sem_meter_%s_%s", md5HashShort(baseTopic), sem.FormatAddress(address)),
		Manufacturer: "SEB/MAYAK",
		Model:        "Smart energy meter",
		Name:         fmt.Sprintf("Energy meter %s", sem.FormatAddress(address)),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func MeterSensors(meterDevice Device, sensors []config.SensorConfig) []GenericSensor {

	var result []GenericSensor

	for _, s := range sensors {
		meta := SensorMetaFor(s)
		result = append(result, GenericSensor{
			Device:            meterDevice,
			Id:                s.Id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              meta.Name,
			StateClass:        meta.StateClass,
			DeviceClass:       meta.DeviceClass,
			UnitOfMeasurement: meta.Unit,
			Icon:              meta.Icon,
			Decimals:          meta.Decimals,
			UniqueId:          uniqueId(meterDevice.Id, s.Id),
		})
	}

	return result
}

func MeterDiagnosticSensors(meterDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Meter link state
	sensors = append(sensors, GenericSensor{
		Device:         meterDevice,
		Id:             SENSOR_ID_METER_CONNECTED,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Meter connected",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(meterDevice.Id, SENSOR_ID_METER_CONNECTED),
	})

	// Poll cycle duration
	sensors = append(sensors, GenericSensor{
		Device:            meterDevice,
		Id:                SENSOR_ID_LAST_CYCLE_DURATION,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Last poll duration",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_DURATION,
		UnitOfMeasurement: "ms",
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:          uniqueId(meterDevice.Id, SENSOR_ID_LAST_CYCLE_DURATION),
	})

	// Values applied in the last cycle
	sensors = append(sensors, GenericSensor{
		Device:           meterDevice,
		Id:               SENSOR_ID_SENSORS_UPDATED,
		SensorType:       SENSOR_TYPE_SENSOR,
		Name:             "Sensors updated",
		StateClass:       STATE_CLASS_MEASUREMENT,
		EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault: optionalBool(false),
		Icon:             "mdi:counter",
		UniqueId:         uniqueId(meterDevice.Id, SENSOR_ID_SENSORS_UPDATED),
	})

	return sensors
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Bridge connection
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

func MeterButtons(meterDevice Device) []GenericButton {
	return []GenericButton{
		{
			Device:         meterDevice,
			Id:             BUTTON_ID_POLL_NOW,
			Name:           "Poll now",
			Icon:           "mdi:refresh",
			EntityCategory: ENTITY_CLASS_CONFIG,
			UniqueId:       uniqueId(meterDevice.Id, BUTTON_ID_POLL_NOW),
		},
	}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
