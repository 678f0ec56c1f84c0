package mqttbridge

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Options configures the broker connection.
type Options struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	QoS         byte
	Retained    bool
}

// Publisher is the part of an MQTT client the bridge needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Close()
}

// Client is a paho connection that keeps retrying in the background.
type Client struct {
	raw mqtt.Client
}

var _ Publisher = (*Client)(nil)

// Dial connects to the broker.
func Dial(opts Options) (*Client, error) {
	o := mqtt.NewClientOptions()
	o.AddBroker(opts.BrokerURL)
	o.SetClientID(opts.ClientID)
	o.SetConnectRetry(true)
	o.SetConnectRetryInterval(2 * time.Second)
	o.SetAutoReconnect(true)
	c := mqtt.NewClient(o)

	token := c.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &Client{raw: c}, nil
}

func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	token := c.raw.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

func (c *Client) Close() {
	c.raw.Disconnect(250)
}
