package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "github.com/berfenger/sem2mqtt/internal/adapter/actor"
	"github.com/berfenger/sem2mqtt/internal/config"
	"github.com/berfenger/sem2mqtt/internal/core/actor"
	"github.com/berfenger/sem2mqtt/internal/core/domain"
	"github.com/berfenger/sem2mqtt/internal/core/events"
	"github.com/berfenger/sem2mqtt/internal/schedule"
	"github.com/berfenger/sem2mqtt/internal/server"
	"github.com/berfenger/sem2mqtt/internal/util/actorutil"
	"github.com/berfenger/sem2mqtt/pkg/sem"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root
	eventStream := eventstream.NewEventStream()

	// init meter driver and its sensors
	driver, err := newMeterDriver(cfg, eventStream, logger)
	if err != nil {
		logger.Fatal("could not set up meter driver", zap.Error(err))
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, eventStream, meterActorProvider(cfg, driver, logger), mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Fatal("could not spawn master actor", zap.Error(err))
	}

	// poll cadence
	pollSchedule, err := schedule.NewPollSchedule(cfg.Meter.PollInterval, func(tick domain.PollTick) {
		ctx.Send(pid, tick)
	}, logger)
	if err != nil {
		logger.Fatal("could not create poll schedule", zap.Error(err))
	}
	scheduleCtx, cancelSchedule := context.WithCancel(context.Background())
	if err := pollSchedule.Start(scheduleCtx); err != nil {
		logger.Fatal("could not start poll schedule", zap.Error(err))
	}

	server := server.NewServer(*cfg, ctx, pid, eventStream, logger)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelStop()
	cancelSchedule()
	pollSchedule.Stop(stopCtx)

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => SEM_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("SEM_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("sem")
	// meter.address => SEM_METER_ADDRESS
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func newMeterDriver(cfg *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) (*sem.Driver, error) {
	var link sem.Link
	if cfg.Serial.Simulate {
		logger.Warn("serial.simulate is set, polling a simulated meter")
		link = sem.NewSimulatedMeter(cfg.Meter.Address, cfg.Meter.Password)
	} else {
		link = sem.NewSerialLink(cfg.Serial.LinkConfig(), logger, nil)
	}

	driver, err := sem.NewDriver(link, cfg.Meter.DriverConfig(), logger)
	if err != nil {
		return nil, err
	}
	for _, s := range cfg.Meter.Sensors {
		meta := domain.SensorMetaFor(s)
		if err := driver.AddSensor(events.NewStreamOutput(s.Id, s.Command, meta.Decimals, eventStream), s.Command); err != nil {
			return nil, fmt.Errorf("sensor %s: %w", s.Id, err)
		}
	}
	return driver, nil
}

func meterActorProvider(cfg *config.Config, driver *sem.Driver, logger *zap.Logger) actor.MeterActorProvider {
	return func() *adactor.MeterActor {
		return adactor.NewMeterActor(driver, cfg.Meter.CycleBudget, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "sem")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("meter.address", sem.DEFAULT_ADDRESS)
	viper.SetDefault("meter.password", sem.DEFAULT_PASSWORD)
	viper.SetDefault("meter.poll_interval", "30s")
	viper.SetDefault("meter.command_timeout", sem.DEFAULT_COMMAND_TIMEOUT.String())
	viper.SetDefault("meter.auth_timeout", sem.DEFAULT_COMMAND_TIMEOUT.String())
	viper.SetDefault("meter.command_delay", sem.DEFAULT_COMMAND_DELAY.String())
	viper.SetDefault("meter.login_command", sem.DEFAULT_LOGIN_COMMAND)
	viper.SetDefault("meter.sensors", []map[string]any{
		{"command": "E"},
		{"command": "=M"},
	})
	viper.SetDefault("serial.device", "/dev/ttyUSB0")
	viper.SetDefault("serial.baud_rate", 9600)
	viper.SetDefault("serial.data_bits", 8)
	viper.SetDefault("serial.stop_bits", 1)
	viper.SetDefault("serial.parity", "N")
	viper.SetDefault("serial.read_timeout", "50ms")
	viper.SetDefault("serial.rs485", false)
	viper.SetDefault("serial.simulate", false)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Meter.Password = "*****"
	slog.Info("Using", "config", cfg)
}
