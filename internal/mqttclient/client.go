// Package mqttclient publishes job events to an MQTT broker and accepts
// job commands from it.
package mqttclient

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/snarg/transcriptor/internal/events"
	"github.com/snarg/transcriptor/internal/metrics"
)

// CancelHandler is called with the job id from a cancel command.
type CancelHandler func(jobID string)

type Client struct {
	conn      mqtt.Client
	prefix    string
	qos       byte
	connected atomic.Bool
	log       zerolog.Logger
	onCancel  atomic.Pointer[CancelHandler]
}

type Options struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string // default "transcriptor"
	Username    string
	Password    string
	QoS         byte
	Log         zerolog.Logger
}

func Connect(opts Options) (*Client, error) {
	c := &Client{
		prefix: strings.Trim(opts.TopicPrefix, "/"),
		qos:    opts.QoS,
		log:    opts.Log,
	}
	if c.prefix == "" {
		c.prefix = "transcriptor"
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetDefaultPublishHandler(c.onMessage)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	c.conn = mqtt.NewClient(clientOpts)
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return c, nil
}

// SetCancelHandler installs the handler for "<prefix>/jobs/<id>/cancel"
// commands.
func (c *Client) SetCancelHandler(h CancelHandler) {
	c.onCancel.Store(&h)
}

// PublishEvent sends a job event to "<prefix>/jobs/<jobId>/<type>". It does
// not wait for the broker; events are dropped while disconnected.
func (c *Client) PublishEvent(e events.Event) {
	if !c.connected.Load() {
		metrics.MQTTPublishedTotal.WithLabelValues("dropped").Inc()
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	c.conn.Publish(eventTopic(c.prefix, e), c.qos, false, payload)
	metrics.MQTTPublishedTotal.WithLabelValues("sent").Inc()
}

func (c *Client) onConnect(client mqtt.Client) {
	c.connected.Store(true)
	topic := c.prefix + "/jobs/+/cancel"
	c.log.Info().Str("topic", topic).Msg("mqtt connected, subscribing")

	token := client.Subscribe(topic, c.qos, nil)
	token.Wait()
	if err := token.Error(); err != nil {
		c.log.Error().Err(err).Msg("mqtt subscribe failed")
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	jobID, ok := cancelTarget(c.prefix, msg.Topic())
	if !ok {
		c.log.Debug().
			Str("topic", msg.Topic()).
			Int("payload_size", len(msg.Payload())).
			Msg("mqtt message ignored")
		return
	}
	if h := c.onCancel.Load(); h != nil {
		(*h)(jobID)
	}
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) Close() {
	c.log.Info().Msg("disconnecting mqtt client")
	c.conn.Disconnect(1000)
}

func eventTopic(prefix string, e events.Event) string {
	job := e.JobID
	if job == "" {
		job = "_"
	}
	return prefix + "/jobs/" + job + "/" + e.Type
}

// cancelTarget extracts the job id from a "<prefix>/jobs/<id>/cancel" topic.
func cancelTarget(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/jobs/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/cancel")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
