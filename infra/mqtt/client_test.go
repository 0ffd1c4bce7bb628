package mqtt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/railsched/core/kpi"
	coremetrics "github.com/kilianp07/railsched/core/metrics"
	coremon "github.com/kilianp07/railsched/core/monitoring"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	if err := os.WriteFile(certFile, certPEM, 0644); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0644); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if err := os.WriteFile(caFile, certPEM, 0644); err != nil {
		t.Fatalf("write ca: %v", err)
	}
	return
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	if err != nil {
		t.Fatalf("load tls: %v", err)
	}
	if len(tlsCfg.Certificates) == 0 {
		t.Fatalf("no certs loaded")
	}
	if tlsCfg.RootCAs == nil {
		t.Fatalf("no root CAs")
	}
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("opts: %v", err)
	}
	if opts.Username != "u" || opts.Password != "p" {
		t.Fatalf("auth not set")
	}
}

func withMock(t *testing.T, mc *mockClient) {
	t.Helper()
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } })
}

func TestNewSinkRequiresBroker(t *testing.T) {
	if _, err := NewSink(Config{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSinkTopicsAndQoS(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cli, err := NewSink(Config{Broker: "tcp://localhost:1883", TopicPrefix: "rail/", QoS: map[string]byte{"kpi": 1, "disruption": 2}})
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	if len(mc.published) != 1 || mc.published[0].topic != "rail/status" || !mc.published[0].retained {
		t.Fatalf("expected retained online status, got %+v", mc.published)
	}
	now := time.Date(2025, 9, 26, 10, 0, 0, 0, time.UTC)
	if err := cli.RecordKPIs(coremetrics.KPISnapshot{Source: "current", Time: now, Report: kpi.Report{PunctualityRate: 50}}); err != nil {
		t.Fatalf("kpis: %v", err)
	}
	if err := cli.RecordDisruption(coremetrics.DisruptionRecord{EventID: "OBS-1", Kind: "obstruction", Action: "applied", Time: now}); err != nil {
		t.Fatalf("disruption: %v", err)
	}
	if err := cli.RecordOptimization(coremetrics.OptimizationRun{Solver: "lp", Time: now}); err != nil {
		t.Fatalf("optimization: %v", err)
	}
	want := []struct {
		topic    string
		qos      byte
		retained bool
	}{
		{"rail/kpi/current", 1, true},
		{"rail/disruption/OBS-1", 2, false},
		{"rail/optimization", 0, false},
	}
	for i, w := range want {
		got := mc.published[i+1]
		if got.topic != w.topic || got.qos != w.qos || got.retained != w.retained {
			t.Fatalf("publish %d: got %+v want %+v", i, got, w)
		}
	}
	var msg struct {
		Source string `json:"source"`
		Report struct {
			Punctuality float64 `json:"punctuality_rate"`
		} `json:"report"`
	}
	if err := json.Unmarshal(mc.published[1].payload, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Source != "current" || msg.Report.Punctuality != 50 {
		t.Fatalf("unexpected payload %+v", msg)
	}
}

func TestWillConfigured(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cli, err := NewSink(Config{Broker: "tcp://localhost:1883"})
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	if !mc.opts.WillEnabled || mc.opts.WillTopic != "railsched/status" || string(mc.opts.WillPayload) != "offline" {
		t.Fatalf("will options incorrect")
	}
	cli.Close()
	last := mc.published[len(mc.published)-1]
	if last.topic != "railsched/status" || string(last.payload) != "offline" {
		t.Fatalf("expected offline status on close, got %+v", last)
	}
}

func TestRetryLogic(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cli, err := NewSink(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	mc.publishErrs = []error{fmt.Errorf("net fail"), nil}
	if err := cli.RecordKPIs(coremetrics.KPISnapshot{Source: "baseline"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(mc.published) != 3 {
		t.Fatalf("expected one retry, got %d publishes", len(mc.published))
	}
}

type recordMonitor struct {
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.err = err
	r.tags = tags
}
func (r *recordMonitor) RecoverPanic(any)    {}
func (r *recordMonitor) Flush(time.Duration) {}

func TestPublishErrorCaptured(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	mon := &recordMonitor{}
	coremon.Init(mon)
	defer coremon.Init(nil)
	cli, err := NewSink(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	mc.publishErrs = []error{fmt.Errorf("net fail"), fmt.Errorf("net fail")}
	if err := cli.RecordDisruption(coremetrics.DisruptionRecord{EventID: "E1"}); err == nil {
		t.Fatalf("expected error")
	}
	if mon.err == nil || mon.tags["module"] != "mqtt" || mon.tags["topic"] != "railsched/disruption/E1" {
		t.Fatalf("error not captured: %+v", mon)
	}
}

// mockClient implements pahoClient for tests
type mockClient struct {
	opts       *paho.ClientOptions
	subscribed []struct {
		topic string
		qos   byte
	}
	published   []publishCall
	publishErrs []error
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}

type publishCall struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	p := publishCall{topic: topic, qos: qos, retained: retained}
	switch v := payload.(type) {
	case []byte:
		p.payload = v
	case string:
		p.payload = []byte(v)
	}
	m.published = append(m.published, p)
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}
func (m *mockClient) Subscribe(topic string, qos byte, _ paho.MessageHandler) paho.Token {
	m.subscribed = append(m.subscribed, struct {
		topic string
		qos   byte
	}{topic, qos})
	return &dummyToken{}
}
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return true }

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }
