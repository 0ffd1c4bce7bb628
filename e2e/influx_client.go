package e2e

import (
	"context"
	"fmt"
	"sort"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxClient reads back what the service wrote to a bucket.
type InfluxClient struct {
	org    string
	bucket string
	client influxdb2.Client
	write  api.WriteAPIBlocking
	query  api.QueryAPI
}

func NewInfluxClient(url, org, bucket, token string) *InfluxClient {
	c := influxdb2.NewClient(url, token)
	return &InfluxClient{
		org:    org,
		bucket: bucket,
		client: c,
		write:  c.WriteAPIBlocking(org, bucket),
		query:  c.QueryAPI(org),
	}
}

// Probe writes a marker point so an empty bucket can be told apart from a
// broken connection.
func (c *InfluxClient) Probe(ctx context.Context) error {
	p := influxdb2.NewPoint("e2e_probe", map[string]string{"suite": "railsched"}, map[string]any{"value": 1}, time.Now())
	return c.write.WritePoint(ctx, p)
}

// CountRows returns the number of records of measurement written within the
// last window.
func (c *InfluxClient) CountRows(ctx context.Context, measurement string, window time.Duration) (int, error) {
	res, err := c.query.Query(ctx, c.flux(measurement, window))
	if err != nil {
		return 0, err
	}
	defer res.Close()
	n := 0
	for res.Next() {
		n++
	}
	return n, res.Err()
}

// TagValues returns the sorted distinct values of tag on measurement.
func (c *InfluxClient) TagValues(ctx context.Context, measurement, tag string, window time.Duration) ([]string, error) {
	res, err := c.query.Query(ctx, c.flux(measurement, window))
	if err != nil {
		return nil, err
	}
	defer res.Close()
	seen := map[string]struct{}{}
	for res.Next() {
		if v, ok := res.Record().ValueByKey(tag).(string); ok {
			seen[v] = struct{}{}
		}
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func (c *InfluxClient) flux(measurement string, window time.Duration) string {
	return fmt.Sprintf(`from(bucket:"%s") |> range(start:-%ds) |> filter(fn: (r) => r._measurement == "%s")`,
		c.bucket, int(window.Seconds()), measurement)
}

func (c *InfluxClient) Close() { c.client.Close() }
