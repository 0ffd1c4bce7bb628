// Package mqtt publishes KPI snapshots, optimizer runs and disruption
// records to an MQTT broker.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/railsched/core/kpi"
	coremetrics "github.com/kilianp07/railsched/core/metrics"
	"github.com/kilianp07/railsched/core/monitoring"
	"github.com/kilianp07/railsched/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string          `json:"broker"`
	ClientID    string          `json:"client_id"`
	Username    string          `json:"username"`
	Password    string          `json:"password"`
	TopicPrefix string          `json:"topic_prefix"`
	UseTLS      bool            `json:"use_tls"`
	ClientCert  string          `json:"client_cert"`
	ClientKey   string          `json:"client_key"`
	CABundle    string          `json:"ca_bundle"`
	QoS         map[string]byte `json:"qos"`
	MaxRetries  int             `json:"max_retries"`
	BackoffMS   int             `json:"backoff_ms"`
	TLSConfig   *tls.Config     `json:"-"`
}

func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "railsched"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "railsched"
	}
	c.TopicPrefix = strings.TrimSuffix(c.TopicPrefix, "/")
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Sink publishes observations as JSON messages. The status topic carries a
// retained "online" message while connected and "offline" as last will.
type Sink struct {
	cli        pahoClient
	prefix     string
	qos        map[string]byte
	maxRetries int
	backoff    time.Duration
	logger     logger.Logger
}

var (
	_ coremetrics.OptimizationRecorder = (*Sink)(nil)
	_ coremetrics.DisruptionRecorder   = (*Sink)(nil)
)

// NewSink connects to the broker.
func NewSink(cfg Config) (*Sink, error) {
	cfg.SetDefaults()
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt sink: broker is required")
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_sink")
	s := &Sink{
		prefix:     cfg.TopicPrefix,
		qos:        cfg.QoS,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		logger:     log,
	}
	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if token := c.Publish(s.statusTopic(), 1, true, "online"); token.Wait() && token.Error() != nil {
			log.Errorf("status publish error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	s.cli = c
	return s, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	cfg.SetDefaults()
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	opts.SetWill(cfg.TopicPrefix+"/status", "offline", 1, true)
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (s *Sink) statusTopic() string { return s.prefix + "/status" }

type kpiMessage struct {
	Source    string     `json:"source"`
	Timestamp int64      `json:"timestamp"`
	Report    kpi.Report `json:"report"`
}

// RecordKPIs publishes the snapshot as a retained message on
// <prefix>/kpi/<source>.
func (s *Sink) RecordKPIs(snap coremetrics.KPISnapshot) error {
	msg := kpiMessage{Source: snap.Source, Timestamp: snap.Time.UnixMilli(), Report: snap.Report}
	return s.publish("kpi", s.prefix+"/kpi/"+snap.Source, true, msg)
}

// RecordOptimization publishes the run on <prefix>/optimization.
func (s *Sink) RecordOptimization(r coremetrics.OptimizationRun) error {
	msg := struct {
		ScheduleID      string  `json:"schedule_id"`
		Solver          string  `json:"solver"`
		ObjectiveBefore float64 `json:"objective_before"`
		ObjectiveAfter  float64 `json:"objective_after"`
		Iterations      int     `json:"iterations"`
		Swaps           int     `json:"swaps"`
		DurationMS      int64   `json:"duration_ms"`
		Accepted        bool    `json:"accepted"`
		Error           string  `json:"error,omitempty"`
		Timestamp       int64   `json:"timestamp"`
	}{r.ScheduleID, r.Solver, r.ObjectiveBefore, r.ObjectiveAfter, r.Iterations, r.Swaps,
		r.Duration.Milliseconds(), r.Accepted, r.Error, r.Time.UnixMilli()}
	return s.publish("optimization", s.prefix+"/optimization", false, msg)
}

// RecordDisruption publishes the record on <prefix>/disruption/<event id>.
func (s *Sink) RecordDisruption(r coremetrics.DisruptionRecord) error {
	msg := struct {
		EventID   string `json:"event_id"`
		Kind      string `json:"kind"`
		Action    string `json:"action"`
		Affected  int    `json:"affected"`
		Cascaded  int    `json:"cascaded"`
		Residual  int    `json:"residual"`
		Timestamp int64  `json:"timestamp"`
	}{r.EventID, r.Kind, r.Action, r.Affected, r.Cascaded, r.Residual, r.Time.UnixMilli()}
	return s.publish("disruption", s.prefix+"/disruption/"+r.EventID, false, msg)
}

func (s *Sink) publish(kind, topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	qos := s.qos[kind]
	var publishErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		token := s.cli.Publish(topic, qos, retained, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			s.logger.Debugf("published %s to %s", kind, topic)
			return nil
		}
		s.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt < s.maxRetries {
			time.Sleep(s.backoff * time.Duration(1<<attempt))
		}
	}
	monitoring.CaptureException(publishErr, map[string]string{"module": "mqtt", "topic": topic})
	return fmt.Errorf("mqtt publish %s: %w", topic, publishErr)
}

// Close publishes the offline status and disconnects.
func (s *Sink) Close() {
	if s.cli == nil || !s.cli.IsConnected() {
		return
	}
	if token := s.cli.Publish(s.statusTopic(), 1, true, "offline"); token.Wait() && token.Error() != nil {
		s.logger.Warnf("status publish error: %v", token.Error())
	}
	s.cli.Disconnect(250)
}
