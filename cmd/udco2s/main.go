package main

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shooontan/udco2s/pkg/publish"
	"github.com/shooontan/udco2s/pkg/udco2s"
	"github.com/urfave/cli/v2"
	"os"
	"syscall"
)

var version = "dev"

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "unknown"
	}
	return name
}

func setupLogger(debug bool) {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).
		With().Timestamp().Str("app", "udco2s").Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func run(c *cli.Context) (err error) {
	setupLogger(c.Bool("debug"))

	format, err := udco2s.ParseFormat(c.String("format"))
	if err != nil {
		return err
	}

	var publishers []udco2s.Publisher
	if addr := c.String("mqtt-address"); addr != "" {
		topic := c.String("mqtt-topic")
		if topic == "" {
			topic = publish.ReadingTopic(hostname())
		}
		pub, err := publish.NewMQTTPublisher(publish.MQTTConfig{
			BrokerAddress: addr,
			Username:      c.String("mqtt-username"),
			Password:      c.String("mqtt-password"),
			Logger:        publish.ZerologAdapter{Logger: log.With().Str("component", "mqtt").Logger(), Level: zerolog.WarnLevel},
		}, topic)
		if err != nil {
			return err
		}
		defer func() {
			log.Debug().Msg("Shutting down MQTT publisher now...")
			pub.Close()
		}()
		log.Info().Str("broker", addr).Str("topic", topic).Msg("publishing readings to MQTT")
		publishers = append(publishers, pub)
	}

	device := c.String("port")
	session, err := udco2s.OpenSession(udco2s.OpenSerialPort, device)
	if err != nil {
		return err
	}
	defer func() {
		cerr := session.Close()
		if err == nil {
			err = cerr
		} else if cerr != nil {
			log.Debug().Err(cerr).Msg("closing session after failure")
		}
	}()

	watcher := udco2s.NewShutdownWatcher()
	watcher.WatchInput(os.Stdin)
	stop := watcher.WatchSignals(os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := udco2s.Loop{
		Port:       session,
		Shutdown:   watcher.Done(),
		Format:     format,
		Once:       c.Bool("once"),
		Out:        os.Stdout,
		Publishers: publishers,
	}
	return loop.Run()
}

func main() {
	setupLogger(false)

	app := &cli.App{
		Name:    "udco2s",
		Usage:   "print readings from a UD-CO2S sensor attached to a serial port",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "port",
				Usage:    "device path to a serial port",
				EnvVars:  []string{"UDCO2S_PORT"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "format",
				Usage:   "output format (json or kv)",
				Value:   udco2s.FormatKV.String(),
				EnvVars: []string{"UDCO2S_FORMAT"},
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "exit after the first reading",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "enable debug logging",
				EnvVars: []string{"UDCO2S_DEBUG"},
			},
			&cli.StringFlag{
				Name:    "mqtt-address",
				Usage:   "also publish readings to this MQTT broker (tcp://host:port)",
				EnvVars: []string{"UDCO2S_MQTT_ADDRESS"},
			},
			&cli.StringFlag{
				Name:    "mqtt-topic",
				Usage:   "MQTT topic to publish on (default udco2s/<hostname>/reading)",
				EnvVars: []string{"UDCO2S_MQTT_TOPIC"},
			},
			&cli.StringFlag{
				Name:    "mqtt-username",
				Usage:   "MQTT username",
				EnvVars: []string{"UDCO2S_MQTT_USERNAME"},
			},
			&cli.StringFlag{
				Name:    "mqtt-password",
				Usage:   "MQTT password",
				EnvVars: []string{"UDCO2S_MQTT_PASSWORD"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("udco2s failed")
	}
}
