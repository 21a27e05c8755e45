package main

import (
	"context"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shooontan/udco2s/awso"
	"github.com/shooontan/udco2s/pkg/publish"
	"github.com/shooontan/udco2s/pkg/udco2s"
	"github.com/urfave/cli/v2"
	"os"
	"os/signal"
	"syscall"
)

var readingTopic = publish.ReadingTopic("+")

type readingHandler struct {
	ctx       context.Context
	publisher publish.CloudwatchPublisher
}

func (handler readingHandler) Reading(device string, r udco2s.Reading) {
	log.Info().Str("device", device).Str("reading", r.Format(udco2s.FormatKV)).Msg("received reading")
	if err := handler.publisher.PublishReading(handler.ctx, device, r); err != nil {
		log.Error().Err(err).Str("device", device).Msg("failed to publish reading to CloudWatch")
	}
}

func (handler readingHandler) Invalid(topic string, message string) {
	log.Warn().Str("topic", topic).Str("message", message).Msg("received invalid reading message")
}

func run(c *cli.Context) error {
	ctx := c.Context
	region := c.String("region")

	identity := awso.NewClientProvider(region, func(cfg aws.Config) *sts.Client {
		return sts.NewFromConfig(cfg)
	})
	arn, err := awso.CallerIdentity(ctx, identity)
	if err != nil {
		return err
	}
	log.Info().Str("arn", arn).Msg("publishing to CloudWatch")

	cw := awso.NewClientProvider(region, func(cfg aws.Config) *cloudwatch.Client {
		log.Debug().Msg("Creating new Cloudwatch client")
		return cloudwatch.NewFromConfig(cfg)
	})
	publisher := publish.NewCloudwatchPublisher(cw, c.String("metricNamespace"), c.String("metricDimension"))

	listener, err := publish.NewMQTTListener(publish.MQTTConfig{
		BrokerAddress: c.String("mqttAddress"),
		Username:      c.String("mqttUsername"),
		Password:      c.String("mqttPassword"),
		Logger:        publish.ZerologAdapter{Logger: log.With().Str("component", "mqtt").Logger(), Level: zerolog.WarnLevel},
	})
	if err != nil {
		return err
	}
	defer func() {
		log.Info().Msg("Shutting down MQTT listener now...")
		listener.Close()
	}()
	if err := listener.RegisterHandler(readingTopic, readingHandler{ctx, publisher}); err != nil {
		return err
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	<-done
	return nil
}

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).
		With().Timestamp().Str("app", "relay").Logger()

	app := &cli.App{
		Name:  "relay",
		Usage: "forward udco2s readings from MQTT to CloudWatch metrics",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "region", Value: "us-east-1", Usage: "Cloudwatch region to use"},
			&cli.StringFlag{Name: "metricNamespace", Value: "Testing", Usage: "Metric namespace to publish in"},
			&cli.StringFlag{Name: "metricDimension", Value: "Device", Usage: "Dimension name to use for identifying devices"},
			&cli.StringFlag{Name: "mqttAddress", Value: "localhost:1883", Usage: "Address:port of MQTT broker"},
			&cli.StringFlag{Name: "mqttUsername", Usage: "MQTT username"},
			&cli.StringFlag{Name: "mqttPassword", Usage: "MQTT password"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("relay failed")
	}
}
