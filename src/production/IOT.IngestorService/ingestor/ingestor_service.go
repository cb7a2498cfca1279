package ingestor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	config "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Config"
	"gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.IngestorService/client"
	logger "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Logger"
)

// queuedMessage is a decoded device message waiting to be forwarded
type queuedMessage struct {
	Topic      string
	Request    client.CreateMessageRequest
	ReceivedAt time.Time
}

type Ingestor struct {
	cfg        *config.IngestorConfig
	apiClient  *client.APIClient
	mqttClient mqtt.Client
	msgCh      chan queuedMessage
	wg         sync.WaitGroup
	logger     *logger.Logger
}

func New(cfg *config.IngestorConfig, apiClient *client.APIClient, logger *logger.Logger) *Ingestor {
	return &Ingestor{
		cfg:       cfg,
		apiClient: apiClient,
		msgCh:     make(chan queuedMessage, 4096),
		logger:    logger,
	}
}

func (i *Ingestor) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(i.brokerURL()).
		SetClientID(i.cfg.MQTT.ClientID).
		SetOrderMatters(false).
		SetKeepAlive(i.cfg.MQTT.KeepAlive).
		SetPingTimeout(i.cfg.MQTT.PingTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(false)

	if i.cfg.MQTT.BrokerUser != "" {
		opts.SetUsername(i.cfg.MQTT.BrokerUser)
		opts.SetPassword(i.cfg.MQTT.BrokerPass)
	}

	if i.cfg.MQTT.UseTLS {
		tlsCfg, err := i.tlsConfig(i.cfg.MQTT.CACertPath)
		if err != nil {
			return err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		i.logger.Logger.Error().Err(err).Msg("MQTT connection lost")
	}
	opts.OnConnect = func(c mqtt.Client) {
		topic := i.cfg.MQTT.Topic
		if i.cfg.MQTT.SharedGroup != "" {
			topic = fmt.Sprintf("$share/%s/%s", i.cfg.MQTT.SharedGroup, i.cfg.MQTT.Topic)
		}
		i.logger.Logger.Info().Str("topic", topic).Msg("MQTT connected, subscribing to topic")
		if token := c.Subscribe(topic, 1, i.onMessage); token.Wait() && token.Error() != nil {
			i.logger.Logger.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to subscribe to MQTT topic")
		}
	}

	i.mqttClient = mqtt.NewClient(opts)
	if tk := i.mqttClient.Connect(); tk.Wait() && tk.Error() != nil {
		return tk.Error()
	}

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.batchWriter(ctx)
	}()

	return nil
}

func (i *Ingestor) Stop() {
	if i.mqttClient != nil && i.mqttClient.IsConnected() {
		i.mqttClient.Disconnect(500)
	}
	close(i.msgCh)
	i.wg.Wait()
}

func (i *Ingestor) IsConnected() bool {
	return i.mqttClient != nil && i.mqttClient.IsConnected()
}

func (i *Ingestor) onMessage(_ mqtt.Client, m mqtt.Message) {
	i.logger.Logger.Debug().Str("topic", m.Topic()).Str("payload", string(m.Payload())).Msg("Received MQTT message")

	var req client.CreateMessageRequest
	if err := json.Unmarshal(m.Payload(), &req); err != nil {
		i.logger.Logger.Warn().Err(err).Str("topic", m.Topic()).Msg("Dropping message with invalid JSON payload")
		return
	}

	// Devices publish to devices/<device-id>; a deviceID inside the
	// payload takes precedence over the topic segment.
	if req.DeviceID == "" {
		parts := strings.Split(m.Topic(), "/")
		if len(parts) < 2 || parts[len(parts)-1] == "" {
			i.logger.Logger.Warn().Str("topic", m.Topic()).Str("expected", "devices/<device-id>").Msg("Dropping message without a device id")
			return
		}
		req.DeviceID = parts[len(parts)-1]
	}

	if req.Time == nil {
		t := time.Now().UnixMilli()
		req.Time = &t
	}

	i.logger.Logger.Debug().Str("device_id", req.DeviceID).Msg("Queuing message")
	i.msgCh <- queuedMessage{
		Topic:      m.Topic(),
		Request:    req,
		ReceivedAt: time.Now().UTC(),
	}
}

func (i *Ingestor) batchWriter(ctx context.Context) {
	batch := make([]queuedMessage, 0, i.cfg.BatchSize)
	timer := time.NewTimer(i.cfg.BatchWindow)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		i.logger.Logger.Info().Int("batch_size", len(batch)).Msg("Forwarding batch to API service")

		for _, qm := range batch {
			if err := i.apiClient.CreateMessage(ctx, qm.Request); err != nil {
				if client.IsPermanent(err) {
					i.logger.Logger.Warn().Err(err).Str("device_id", qm.Request.DeviceID).Msg("Message rejected by API service")
				} else {
					i.logger.Logger.Error().Err(err).Str("device_id", qm.Request.DeviceID).Msg("Error forwarding message to API service")
				}
			}
		}

		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case qm, ok := <-i.msgCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, qm)
			if len(batch) >= i.cfg.BatchSize {
				flush()
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(i.cfg.BatchWindow)
			}
		case <-timer.C:
			flush()
			timer.Reset(i.cfg.BatchWindow)
		}
	}
}

func (i *Ingestor) brokerURL() string {
	scheme := "tcp"
	if i.cfg.MQTT.UseTLS {
		scheme = "tcps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, i.cfg.MQTT.BrokerHost, i.cfg.MQTT.BrokerPort)
}

func (i *Ingestor) tlsConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}
	ca, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	cp := x509.NewCertPool()
	if !cp.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("bad CA file")
	}
	cfg.RootCAs = cp
	return cfg, nil
}
