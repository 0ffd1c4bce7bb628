package e2e

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/railsched/app"
	"github.com/kilianp07/railsched/config"
	"github.com/kilianp07/railsched/core/factory"
	"github.com/kilianp07/railsched/scenario"
)

const (
	influxOrg    = "e2e_org"
	influxBucket = "e2e_bucket"
	influxToken  = "e2e-token"
)

// junitReport is a minimal representation of a JUnit XML report. The E2E
// suite writes such a report so CI systems can display the results.
type junitReport struct {
	XMLName  xml.Name        `xml:"testsuite"`
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name    string  `xml:"name,attr"`
	Failure *string `xml:"failure,omitempty"`
	Time    float64 `xml:"time,attr"`
}

// writeJUnit writes the provided report to the given path.
func writeJUnit(path string, rep junitReport) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	return enc.Encode(rep)
}

// startInflux starts an initialised InfluxDB 2.7 container and returns it
// along with the base URL.
func startInflux(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "influxdb:2.7",
		ExposedPorts: []string{"8086/tcp"},
		Env: map[string]string{
			"DOCKER_INFLUXDB_INIT_MODE":        "setup",
			"DOCKER_INFLUXDB_INIT_USERNAME":    "railsched",
			"DOCKER_INFLUXDB_INIT_PASSWORD":    "railsched-e2e",
			"DOCKER_INFLUXDB_INIT_ORG":         influxOrg,
			"DOCKER_INFLUXDB_INIT_BUCKET":      influxBucket,
			"DOCKER_INFLUXDB_INIT_ADMIN_TOKEN": influxToken,
		},
		WaitingFor: wait.ForHTTP("/health").WithPort("8086/tcp").WithStartupTimeout(60 * time.Second),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("unable to start influx container: %v", err)
	}
	host, _ := cont.Host(ctx)
	port, _ := cont.MappedPort(ctx, "8086")
	return cont, fmt.Sprintf("http://%s:%s", host, port.Port())
}

const corridor = `network:
  stations:
    - {code: A, platforms: 2}
    - {code: B, platforms: 1}
    - {code: C, platforms: 2}
  tracks:
    - {id: A-B-UP, from: A, to: B, distance_km: 20, max_speed: 120}
    - {id: B-C-UP, from: B, to: C, distance_km: 30, max_speed: 120}
trains:
  - {id: IC1, priority: 1, source: A, destination: C, speed_kmh: 120, scheduled_departure: 2025-09-26T10:00:00Z, scheduled_arrival: 2025-09-26T10:30:00Z}
  - {id: FR2, priority: 3, source: A, destination: C, speed_kmh: 90, scheduled_departure: 2025-09-26T10:00:00Z, scheduled_arrival: 2025-09-26T10:45:00Z}
disruptions:
  - {event_id: OBS-1, type: obstruction, affected_tracks: [B-C-UP], expected_duration_minutes: 20, after_seconds: 0}
`

// Test_E2E_ScheduleToInflux runs a scenario through the service with an
// influx sink and checks that KPI, optimization and disruption points land
// in the bucket.
func Test_E2E_ScheduleToInflux(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skipf("docker not installed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	influxCont, influxURL := startInflux(ctx, t)
	if influxCont != nil {
		defer influxCont.Terminate(ctx) //nolint:errcheck
	}
	t.Logf("InfluxDB started at %s", influxURL)

	cli := NewInfluxClient(influxURL, influxOrg, influxBucket, influxToken)
	defer cli.Close()
	if err := cli.Probe(ctx); err != nil {
		t.Fatalf("write probe: %v", err)
	}

	cfg := config.Default()
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "influx", Conf: map[string]any{
		"url": influxURL, "token": influxToken, "org": influxOrg, "bucket": influxBucket,
	}}}
	svc, err := app.New(&cfg)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	sc, err := scenario.Decode(strings.NewReader(corridor), "yaml")
	if err != nil {
		t.Fatalf("scenario: %v", err)
	}
	start := time.Now()
	svc.Start(ctx)
	if _, err := svc.Load(ctx, sc); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := scenario.Replay(ctx, svc.Engine, sc, 0, nil); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var failures []string
	for _, m := range []string{"e2e_probe", "kpi_snapshot", "kpi_class", "optimization_run", "disruption_event"} {
		n, err := cli.CountRows(ctx, m, time.Hour)
		if err != nil {
			t.Fatalf("query %s: %v", m, err)
		}
		if n == 0 {
			failures = append(failures, m)
		} else {
			t.Logf("%s: %d rows", m, n)
		}
	}

	sources, err := cli.TagValues(ctx, "kpi_snapshot", "source", time.Hour)
	if err != nil {
		t.Fatalf("query sources: %v", err)
	}
	if strings.Join(sources, ",") != "baseline,current" {
		failures = append(failures, "kpi_snapshot sources "+strings.Join(sources, ","))
	}

	rep := junitReport{Name: "e2e", Tests: 1, Cases: []junitTestCase{{Name: t.Name(), Time: time.Since(start).Seconds()}}}
	if len(failures) > 0 {
		msg := "missing measurements: " + strings.Join(failures, ", ")
		rep.Failures = 1
		rep.Cases[0].Failure = &msg
	}
	if err := writeJUnit(filepath.Join(t.TempDir(), "e2e.xml"), rep); err != nil {
		t.Logf("write junit: %v", err)
	}
	if len(failures) > 0 {
		t.Fatalf("missing measurements in influx: %v", failures)
	}
}
