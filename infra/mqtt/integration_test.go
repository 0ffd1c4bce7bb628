package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/railsched/core/kpi"
	coremetrics "github.com/kilianp07/railsched/core/metrics"
)

// TestIntegration publishes a KPI snapshot through a real Mosquitto broker.
func TestIntegration(t *testing.T) {
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("docker not available")
	}
	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:1.6",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start container: %v", err)
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "1883")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}
	broker := fmt.Sprintf("tcp://%s:%s", host, port.Port())

	sub := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("sub"))
	var connectErr error
	for i := 0; i < 5; i++ {
		if token := sub.Connect(); token.Wait() && token.Error() != nil {
			connectErr = token.Error()
			time.Sleep(500 * time.Millisecond)
			continue
		}
		connectErr = nil
		break
	}
	if connectErr != nil {
		t.Fatalf("failed to connect: %v", connectErr)
	}
	defer sub.Disconnect(250)

	msgCh := make(chan []byte, 1)
	if token := sub.Subscribe("itest/kpi/current", 1, func(_ paho.Client, m paho.Message) {
		msgCh <- m.Payload()
	}); token.Wait() && token.Error() != nil {
		t.Fatalf("failed to subscribe: %v", token.Error())
	}

	sink, err := NewSink(Config{Broker: broker, ClientID: "itest", TopicPrefix: "itest", QoS: map[string]byte{"kpi": 1}})
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	defer sink.Close()
	if err := sink.RecordKPIs(coremetrics.KPISnapshot{Source: "current", Time: time.Now(), Report: kpi.Report{TotalTrains: 3}}); err != nil {
		t.Fatalf("record: %v", err)
	}

	select {
	case payload := <-msgCh:
		var msg kpiMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.Source != "current" || msg.Report.TotalTrains != 3 {
			t.Fatalf("unexpected message %+v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}
