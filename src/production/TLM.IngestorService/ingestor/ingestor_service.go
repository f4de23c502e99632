package ingestor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.IngestorService/client"
	config "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Config"
	logger "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Logger"
)

// Publisher forwards a device publish to the API service
type Publisher interface {
	Publish(ctx context.Context, deviceToken string, body []byte) (*client.PublishResponse, error)
}

// Ingestor bridges MQTT device publishes onto the HTTP publish endpoint
type Ingestor struct {
	cfg        *config.IngestorConfig
	apiClient  Publisher
	mqttClient mqtt.Client
	msgCh      chan job
	wg         sync.WaitGroup
	logger     *logger.Logger

	mu      sync.RWMutex
	stopped bool

	// reportError defaults to publishing on the error topic
	reportError func(deviceID, errorType, message string)
}

func New(cfg *config.IngestorConfig, apiClient Publisher, logger *logger.Logger) *Ingestor {
	queueSize := cfg.QueueSize
	if queueSize < 1 {
		queueSize = 1
	}
	i := &Ingestor{
		cfg:       cfg,
		apiClient: apiClient,
		msgCh:     make(chan job, queueSize),
		logger:    logger.WithComponent("mqtt_ingestor"),
	}
	i.reportError = i.publishError
	return i
}

func (i *Ingestor) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(i.cfg.GetMQTTBrokerURL()).
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
		tlsCfg, err := tlsConfig(i.cfg.MQTT.CACertPath)
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

	i.startWorkers(ctx)
	return nil
}

func (i *Ingestor) startWorkers(ctx context.Context) {
	workers := i.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	for w := 0; w < workers; w++ {
		i.wg.Add(1)
		go func() {
			defer i.wg.Done()
			for j := range i.msgCh {
				i.forward(ctx, j)
			}
		}()
	}
}

// Stop disconnects from the broker and drains queued publishes
func (i *Ingestor) Stop() {
	if i.mqttClient != nil && i.mqttClient.IsConnected() {
		i.mqttClient.Disconnect(500)
	}

	i.mu.Lock()
	if !i.stopped {
		i.stopped = true
		close(i.msgCh)
	}
	i.mu.Unlock()

	i.wg.Wait()
}

func (i *Ingestor) IsConnected() bool {
	return i.mqttClient != nil && i.mqttClient.IsConnected()
}

func (i *Ingestor) onMessage(_ mqtt.Client, m mqtt.Message) {
	i.handle(m.Topic(), m.Payload())
}

// handle validates and queues one message without blocking the MQTT router
func (i *Ingestor) handle(topic string, payload []byte) {
	j, err := parseMessage(topic, payload)
	if err != nil {
		i.logger.Logger.Warn().Err(err).Str("topic", topic).Msg("Rejected MQTT message")
		errType := ErrTypeInvalidPayload
		if errors.Is(err, errInvalidTopic) {
			errType = ErrTypeInvalidTopic
		}
		if j.DeviceID != "" {
			i.reportError(j.DeviceID, errType, err.Error())
		}
		return
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.stopped {
		return
	}

	select {
	case i.msgCh <- j:
		i.logger.Logger.Debug().Str("device_id", j.DeviceID).Msg("Queued device publish")
	default:
		i.logger.Logger.Warn().Str("device_id", j.DeviceID).Msg("Ingest queue full, dropping publish")
		i.reportError(j.DeviceID, ErrTypeQueueFull, "ingestor queue is full, publish dropped")
	}
}

func (i *Ingestor) forward(ctx context.Context, j job) {
	resp, err := i.apiClient.Publish(ctx, j.Token, j.Body)
	if err != nil {
		var apiErr *client.APIError
		switch {
		case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized:
			i.reportError(j.DeviceID, ErrTypeUnauthorized, apiErr.Message)
		case errors.As(err, &apiErr) && apiErr.Permanent():
			i.reportError(j.DeviceID, ErrTypeRejected, apiErr.Message)
		default:
			i.logger.Logger.Error().Err(err).Str("device_id", j.DeviceID).Msg("Failed to forward publish")
			i.reportError(j.DeviceID, ErrTypePublishFailed, err.Error())
		}
		return
	}

	i.logger.Logger.Debug().Str("device_id", j.DeviceID).Int("accepted", len(resp.Data)).Msg("Forwarded device publish")
}

func tlsConfig(caFile string) (*tls.Config, error) {
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

// publishError publishes an error message to the device's error topic
func (i *Ingestor) publishError(deviceID, errorType, message string) {
	if i.mqttClient == nil || !i.mqttClient.IsConnected() {
		return
	}

	errorPayload := map[string]interface{}{
		"error_type": errorType,
		"message":    message,
		"device_id":  deviceID,
		"timestamp":  time.Now().UTC(),
	}

	payloadJSON, err := json.Marshal(errorPayload)
	if err != nil {
		i.logger.Logger.Error().Err(err).Msg("Failed to marshal error payload")
		return
	}

	errorTopic := fmt.Sprintf("ingestor/errors/%s", deviceID)
	token := i.mqttClient.Publish(errorTopic, 1, false, payloadJSON)

	if token.Wait() && token.Error() != nil {
		i.logger.Logger.Error().Err(token.Error()).Str("topic", errorTopic).Msg("Failed to publish error")
	} else {
		i.logger.Logger.Info().Str("topic", errorTopic).Str("message", message).Msg("Published error")
	}
}
