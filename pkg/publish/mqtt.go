package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/eclipse/paho.mqtt.golang"
	"github.com/shooontan/udco2s/pkg/udco2s"
	"math/rand"
	"strings"
	"time"
)

const publishTimeout = 5 * time.Second

type Logger interface {
	Println(v ...interface{})
	Printf(format string, v ...interface{})
}

type MQTTConfig struct {
	Username      string
	Password      string
	BrokerAddress string
	Logger        Logger
	DebugLogger   Logger
}

func connect(cfg MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerAddress)
	opts.SetClientID(generateClientId())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetOrderMatters(false)

	if cfg.Logger != nil {
		mqtt.ERROR = cfg.Logger
		mqtt.CRITICAL = cfg.Logger
		mqtt.WARN = cfg.Logger
	}
	if cfg.DebugLogger != nil {
		mqtt.DEBUG = cfg.DebugLogger
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return client, nil
}

// MQTTPublisher sends every reading, JSON encoded, to a single topic.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
}

func NewMQTTPublisher(cfg MQTTConfig, topic string) (*MQTTPublisher, error) {
	client, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", cfg.BrokerAddress, err)
	}
	return &MQTTPublisher{client, topic}, nil
}

func (pub *MQTTPublisher) Publish(r udco2s.Reading) error {
	token := pub.client.Publish(pub.topic, 0, false, r.Format(udco2s.FormatJSON))
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timed out after %v", pub.topic, publishTimeout)
	}
	return token.Error()
}

func (pub *MQTTPublisher) Close() {
	pub.client.Disconnect(1000)
}

// ReadingTopic is the topic a sensor attached to host publishes on.
func ReadingTopic(host string) string {
	return fmt.Sprintf("udco2s/%s/reading", host)
}

// DeviceFromTopic returns the host segment of a reading topic.
func DeviceFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "udco2s" || parts[2] != "reading" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

type jsonReading struct {
	CO2 *json.Number `json:"CO2"`
	HUM *json.Number `json:"HUM"`
	TMP *json.Number `json:"TMP"`
}

// DecodeReading parses the JSON form produced by udco2s.FormatJSON.
func DecodeReading(payload []byte) (udco2s.Reading, error) {
	var jr jsonReading
	if err := json.Unmarshal(payload, &jr); err != nil {
		return udco2s.Reading{}, err
	}
	if jr.CO2 == nil || jr.HUM == nil || jr.TMP == nil {
		return udco2s.Reading{}, errors.New("reading is missing a field")
	}
	return udco2s.Reading{CO2: jr.CO2.String(), Humidity: jr.HUM.String(), Temperature: jr.TMP.String()}, nil
}

type MQTTListener struct {
	client mqtt.Client
}

func NewMQTTListener(cfg MQTTConfig) (*MQTTListener, error) {
	client, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	return &MQTTListener{client}, nil
}

type MQTTMessageHandler interface {
	Reading(device string, r udco2s.Reading)
	Invalid(topic string, message string)
}

func (lis MQTTListener) RegisterHandler(topic string, handler MQTTMessageHandler) error {
	token := lis.client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		dispatch(handler, msg.Topic(), msg.Payload())
	})
	token.Wait()
	return token.Error()
}

func dispatch(handler MQTTMessageHandler, topic string, payload []byte) {
	device, ok := DeviceFromTopic(topic)
	if !ok {
		handler.Invalid(topic, string(payload))
		return
	}
	r, err := DecodeReading(payload)
	if err != nil {
		handler.Invalid(topic, string(payload))
		return
	}
	handler.Reading(device, r)
}

func (lis MQTTListener) Close() {
	lis.client.Disconnect(1000)
}

func generateClientId() string {
	now := time.Now().Unix()
	random := rand.Intn(1000000)
	return fmt.Sprintf("udco2s-%v-%v", now, random)
}
