package telemetry

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// MQTTLink carries events over an MQTT broker. Paho's own reconnect
// machinery is disabled; the connection manager owns all retry policy.
type MQTTLink struct {
	client       paho.Client
	handlers     Handlers
	eventTopic   string
	commandTopic string
}

func NewMQTTLink(broker, clientID, topicPrefix string) *MQTTLink {
	l := &MQTTLink{
		eventTopic:   topicPrefix + "/events",
		commandTopic: topicPrefix + "/commands",
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			if l.handlers.OnDisconnect != nil {
				l.handlers.OnDisconnect(err)
			}
		}).
		SetOnConnectHandler(func(c paho.Client) {
			token := c.Subscribe(l.commandTopic, 1, func(_ paho.Client, msg paho.Message) {
				if l.handlers.OnMessage != nil {
					l.handlers.OnMessage(msg.Payload())
				}
			})
			go func() {
				token.Wait()
				if err := token.Error(); err != nil {
					log.Error().Err(err).Str("topic", l.commandTopic).Msg("Command subscription failed")
					if l.handlers.OnError != nil {
						l.handlers.OnError(err)
					}
				}
			}()
			if l.handlers.OnConnect != nil {
				l.handlers.OnConnect()
			}
		})

	l.client = paho.NewClient(opts)
	return l
}

func (l *MQTTLink) SetHandlers(h Handlers) {
	l.handlers = h
}

// Connect performs one blocking handshake attempt.
func (l *MQTTLink) Connect() error {
	token := l.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

// Send publishes without blocking the caller. Publish failures surface
// through the OnError handler so a slow broker can never delay the safety
// path.
func (l *MQTTLink) Send(e Event) error {
	payload, err := FormatEvent(e)
	if err != nil {
		return fmt.Errorf("format event: %w", err)
	}

	token := l.client.Publish(l.eventTopic, 0, false, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			if l.handlers.OnError != nil {
				l.handlers.OnError(fmt.Errorf("publish timeout: %s", e.Type))
			}
			return
		}
		if err := token.Error(); err != nil && l.handlers.OnError != nil {
			l.handlers.OnError(fmt.Errorf("publish %s: %w", e.Type, err))
		}
	}()
	return nil
}

func (l *MQTTLink) Close() error {
	l.client.Disconnect(1000)
	return nil
}
