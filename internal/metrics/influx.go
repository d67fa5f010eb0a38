// Package metrics pushes settlement telemetry to InfluxDB.
package metrics

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Recorder writes one point per fill and withdrawal. A nil Recorder is a
// no-op so telemetry never becomes a hard dependency.
type Recorder struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

func NewRecorder(url, token, org, bucket string) *Recorder {
	client := influxdb2.NewClient(url, token)
	return &Recorder{
		client: client,
		write:  client.WriteAPIBlocking(org, bucket),
	}
}

// RecordFill logs a settled bid.
func (r *Recorder) RecordFill(ctx context.Context, auction, asset string, filled, paid, fee uint64) {
	if r == nil {
		return
	}
	p := influxdb2.NewPoint("fills",
		map[string]string{"auction": auction, "asset": asset},
		map[string]interface{}{
			"filled": int64(filled),
			"paid":   int64(paid),
			"fee":    int64(fee),
		},
		time.Now(),
	)
	r.write.WritePoint(ctx, p)
}

// RecordWithdrawal logs funds or fees leaving custody.
func (r *Recorder) RecordWithdrawal(ctx context.Context, kind, asset string, amount uint64) {
	if r == nil {
		return
	}
	p := influxdb2.NewPoint("withdrawals",
		map[string]string{"kind": kind, "asset": asset},
		map[string]interface{}{"amount": int64(amount)},
		time.Now(),
	)
	r.write.WritePoint(ctx, p)
}

// Close flushes and releases the client.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.client.Close()
}
