package diokit

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/pkg/errors"
)

const defaultHistoryMeasurement = "diokit_records"

// History streams processed record values into InfluxDB, one point per
// process call, so value and alarm trends survive restarts.
type History struct {
	Host         string
	Organization string
	Bucket       string
	Measurement  string
	Token        string

	client   influxdb2.Client
	writeApi api.WriteAPI
}

func (h *History) Setup() error {
	if len(h.Host) == 0 || len(h.Bucket) == 0 {
		return errors.New("History setup: Host and Bucket are required")
	}

	h.client = influxdb2.NewClient(h.Host, h.Token)
	h.writeApi = h.client.WriteAPI(h.Organization, h.Bucket)

	return nil
}

func (h *History) measurement() string {
	if len(h.Measurement) > 0 {
		return h.Measurement
	}
	return defaultHistoryMeasurement
}

// Append writes one point for a just processed record. The write api is
// non blocking, a slow influx never stalls a scan.
func (h *History) Append(rec *Record) {
	if h.writeApi == nil {
		return
	}

	status, severity := rec.Alarm()
	point := influxdb2.NewPoint(h.measurement(),
		map[string]string{
			"record": rec.Name,
			"kind":   rec.Kind().String(),
			"driver": rec.DriverName,
		},
		map[string]interface{}{
			"rval":     int64(rec.Rval),
			"rbv":      int64(rec.Rbv),
			"alarm":    status.String(),
			"severity": int64(severity),
		},
		time.Now())

	h.writeApi.WritePoint(point)
}

func (h *History) Close() {
	if h.client == nil {
		return
	}

	h.writeApi.Flush()
	h.client.Close()
}
