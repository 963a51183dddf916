package telemetrypush

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"

	"github.com/karsada/fleetcore/internal/config"
	obstracing "github.com/karsada/fleetcore/internal/observability/tracing"
)

const (
	ExporterRemoteWrite = "prometheus_remote_write"
	ExporterPushgateway = "prometheus_pushgateway"

	pushTimeout = 5 * time.Second
)

// Pusher ships one snapshot of gathered metrics to the configured sink.
type Pusher interface {
	Push(ctx context.Context) error
}

// New builds a pusher from config. Misconfiguration is logged and yields
// nil so a bad telemetry block never takes the service down.
func New(cfg config.Config, gatherer prometheus.Gatherer, log *zap.Logger) Pusher {
	if log == nil {
		log = zap.NewNop()
	}
	if !cfg.Telemetry.Enabled {
		return nil
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	exporter := strings.ToLower(strings.TrimSpace(cfg.Telemetry.Exporter))
	endpoint := strings.TrimSpace(cfg.Telemetry.Endpoint)
	if endpoint == "" {
		log.Warn("telemetry push disabled", zap.Error(errors.New("TELEMETRY_PUSH_ENDPOINT is required")))
		return nil
	}
	if exporter == "" {
		log.Warn("telemetry push disabled", zap.Error(errors.New("TELEMETRY_PUSH_EXPORTER is required")))
		return nil
	}

	switch exporter {
	case ExporterRemoteWrite:
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			log.Warn("telemetry push disabled", zap.Error(fmt.Errorf("invalid TELEMETRY_PUSH_ENDPOINT: %w", err)))
			return nil
		}
		return newRemoteWritePusher(endpoint, cfg.Telemetry.AuthToken, gatherer)
	case ExporterPushgateway:
		return newPushgatewayPusher(endpoint, cfg.AppName, map[string]string{
			"environment": strings.TrimSpace(cfg.Environment),
		}, gatherer)
	default:
		log.Warn("telemetry push disabled", zap.String("exporter", exporter))
		return nil
	}
}

type remoteWritePusher struct {
	endpoint  string
	authToken string
	gatherer  prometheus.Gatherer
	client    *http.Client
}

func newRemoteWritePusher(endpoint, authToken string, gatherer prometheus.Gatherer) *remoteWritePusher {
	return &remoteWritePusher{
		endpoint:  endpoint,
		authToken: strings.TrimSpace(authToken),
		gatherer:  gatherer,
		client: obstracing.WrapHTTPClient(&http.Client{
			Timeout: pushTimeout,
		}),
	}
}

// Push gathers the registry and sends counters and gauges as one
// snappy-compressed WriteRequest. An empty gather sends nothing.
func (p *remoteWritePusher) Push(ctx context.Context) error {
	families, err := p.gatherer.Gather()
	if err != nil {
		return err
	}
	series := buildWriteSeries(families, time.Now().UnixMilli())
	if len(series) == 0 {
		return nil
	}

	payload, err := proto.Marshal(protoadapt.MessageV2Of(&prompb.WriteRequest{Timeseries: series}))
	if err != nil {
		return err
	}
	compressed := snappy.Encode(nil, payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(compressed))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("remote write returned %s", resp.Status)
	}
	return nil
}

type pushgatewayPusher struct {
	endpoint string
	job      string
	grouping map[string]string
	gatherer prometheus.Gatherer
}

func newPushgatewayPusher(endpoint, job string, grouping map[string]string, gatherer prometheus.Gatherer) *pushgatewayPusher {
	return &pushgatewayPusher{
		endpoint: endpoint,
		job:      strings.TrimSpace(job),
		grouping: grouping,
		gatherer: gatherer,
	}
}

// Push replaces this instance's metric group on the Pushgateway.
func (p *pushgatewayPusher) Push(ctx context.Context) error {
	if p.job == "" {
		return errors.New("pushgateway job is required")
	}
	pusher := push.New(p.endpoint, p.job).Gatherer(p.gatherer)
	for key, value := range p.grouping {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		pusher = pusher.Grouping(key, value)
	}
	return pusher.PushContext(ctx)
}

// buildWriteSeries converts counter and gauge families to remote_write
// series. Histograms and summaries stay local; the central collector
// only aggregates fleet-level counts and gauges.
func buildWriteSeries(families []*dto.MetricFamily, timestampMs int64) []prompb.TimeSeries {
	series := make([]prompb.TimeSeries, 0, len(families))
	for _, family := range families {
		switch family.GetType() {
		case dto.MetricType_COUNTER, dto.MetricType_GAUGE:
		default:
			continue
		}
		for _, metric := range family.GetMetric() {
			value := sampleValue(family.GetType(), metric)
			if value == nil {
				continue
			}
			labels := make([]prompb.Label, 0, len(metric.GetLabel())+1)
			labels = append(labels, prompb.Label{Name: "__name__", Value: family.GetName()})
			for _, label := range metric.GetLabel() {
				labels = append(labels, prompb.Label{Name: label.GetName(), Value: label.GetValue()})
			}
			sort.Slice(labels, func(i, j int) bool {
				return labels[i].Name < labels[j].Name
			})

			series = append(series, prompb.TimeSeries{
				Labels: labels,
				Samples: []prompb.Sample{{
					Value:     *value,
					Timestamp: timestampMs,
				}},
			})
		}
	}
	return series
}

func sampleValue(metricType dto.MetricType, metric *dto.Metric) *float64 {
	if metric == nil {
		return nil
	}
	switch metricType {
	case dto.MetricType_COUNTER:
		if metric.GetCounter() == nil {
			return nil
		}
		value := metric.GetCounter().GetValue()
		return &value
	case dto.MetricType_GAUGE:
		if metric.GetGauge() == nil {
			return nil
		}
		value := metric.GetGauge().GetValue()
		return &value
	default:
		return nil
	}
}
