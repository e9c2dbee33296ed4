package metrics

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"bookflow/logger"
)

func TestPublishMetricDatumThrottlesToInterval(t *testing.T) {
	prevState := cwState.Load()
	cwState.Store(&cloudWatchState{client: &cloudwatch.Client{}})
	t.Cleanup(func() { cwState.Store(prevState) })

	resetMetricPublishTimes()
	t.Cleanup(resetMetricPublishTimes)

	originalInterval := cloudWatchPublishInterval
	cloudWatchPublishInterval = 50 * time.Millisecond
	t.Cleanup(func() { cloudWatchPublishInterval = originalInterval })

	baseTime := time.Now()
	timeNow = func() time.Time { return baseTime }
	t.Cleanup(func() { timeNow = time.Now })

	batches := make([][]cwtypes.MetricDatum, 0)
	publishMetricsFunc = func(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
		copyData := make([]cwtypes.MetricDatum, len(data))
		copy(copyData, data)
		batches = append(batches, copyData)
	}
	t.Cleanup(func() { publishMetricsFunc = publishMetrics })

	metric := Metric{Component: "test", Name: "requests", Timestamp: baseTime, Fields: logger.Fields{"unit": "count"}}
	publishMetricDatum(metric, 1)

	timeNow = func() time.Time { return baseTime.Add(25 * time.Millisecond) }
	metric.Timestamp = baseTime.Add(25 * time.Millisecond)
	publishMetricDatum(metric, 2)

	if len(batches) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(batches))
	}

	if len(batches[0]) != 1 {
		t.Fatalf("expected single metric in publish, got %d", len(batches[0]))
	}

	datum := batches[0][0]
	if datum.MetricName == nil || *datum.MetricName != "requests" {
		t.Fatalf("unexpected metric name: %v", datum.MetricName)
	}
	if datum.Value == nil || *datum.Value != 1 {
		t.Fatalf("unexpected metric value: %v", datum.Value)
	}
}

func TestPublishMetricDatumAllowsAfterInterval(t *testing.T) {
	prevState := cwState.Load()
	cwState.Store(&cloudWatchState{client: &cloudwatch.Client{}})
	t.Cleanup(func() { cwState.Store(prevState) })

	resetMetricPublishTimes()
	t.Cleanup(resetMetricPublishTimes)

	originalInterval := cloudWatchPublishInterval
	cloudWatchPublishInterval = 50 * time.Millisecond
	t.Cleanup(func() { cloudWatchPublishInterval = originalInterval })

	baseTime := time.Now()
	timeNow = func() time.Time { return baseTime }
	t.Cleanup(func() { timeNow = time.Now })

	batches := make([][]cwtypes.MetricDatum, 0)
	publishMetricsFunc = func(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
		copyData := make([]cwtypes.MetricDatum, len(data))
		copy(copyData, data)
		batches = append(batches, copyData)
	}
	t.Cleanup(func() { publishMetricsFunc = publishMetrics })

	metric := Metric{Component: "test", Name: "requests", Timestamp: baseTime, Fields: logger.Fields{"unit": "count"}}
	publishMetricDatum(metric, 1)

	timeNow = func() time.Time { return baseTime.Add(75 * time.Millisecond) }
	metric.Timestamp = baseTime.Add(75 * time.Millisecond)
	publishMetricDatum(metric, 2)

	if len(batches) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(batches))
	}

	second := batches[1]
	if len(second) != 1 {
		t.Fatalf("expected single metric in second publish, got %d", len(second))
	}

	datum := second[0]
	if datum.MetricName == nil || *datum.MetricName != "requests" {
		t.Fatalf("unexpected metric name: %v", datum.MetricName)
	}
	if datum.Value == nil || *datum.Value != 2 {
		t.Fatalf("unexpected metric value: %v", datum.Value)
	}
}

func TestPublishMetricDatumSeparatesSeries(t *testing.T) {
	prevState := cwState.Load()
	cwState.Store(&cloudWatchState{client: &cloudwatch.Client{}})
	t.Cleanup(func() { cwState.Store(prevState) })

	resetMetricPublishTimes()
	t.Cleanup(resetMetricPublishTimes)

	baseTime := time.Now()
	timeNow = func() time.Time { return baseTime }
	t.Cleanup(func() { timeNow = time.Now })

	var batches [][]cwtypes.MetricDatum
	publishMetricsFunc = func(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
		batches = append(batches, data)
	}
	t.Cleanup(func() { publishMetricsFunc = publishMetrics })

	publishMetricDatum(Metric{Component: "test", Name: "alerts", Fields: logger.Fields{"vendor": "kraken", "stream": "book"}}, 1)
	publishMetricDatum(Metric{Component: "test", Name: "alerts", Fields: logger.Fields{"vendor": "kraken", "stream": "trade"}}, 1)
	publishMetricDatum(Metric{Component: "test", Name: "alerts", Fields: logger.Fields{"stream": "book", "vendor": "kraken"}}, 1)

	if len(batches) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(batches))
	}

	dims := batches[0][0].Dimensions
	if len(dims) != 3 {
		t.Fatalf("expected component plus two field dimensions, got %d", len(dims))
	}
}

func TestPublishMetricDatumWithoutClient(t *testing.T) {
	prevState := cwState.Load()
	cwState.Store(&cloudWatchState{})
	t.Cleanup(func() { cwState.Store(prevState) })

	called := false
	publishMetricsFunc = func(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
		called = true
	}
	t.Cleanup(func() { publishMetricsFunc = publishMetrics })

	publishMetricDatum(Metric{Component: "test", Name: "requests"}, 1)
	if called {
		t.Fatal("publish should be skipped without a client")
	}
}

func TestDashboardTemplateIsValidJSON(t *testing.T) {
	body := strings.NewReplacer("${NAMESPACE}", "Bookflow", "${REGION}", "eu-west-1").Replace(dashboardTemplate)
	if !json.Valid([]byte(body)) {
		t.Fatal("dashboard template is not valid JSON")
	}
	if strings.Contains(body, "${") {
		t.Fatal("unreplaced placeholder in dashboard")
	}
}
