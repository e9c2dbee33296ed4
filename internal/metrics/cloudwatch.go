package metrics

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"bookflow/logger"
)

//go:embed CWdash.json
var dashboardTemplate string

type cloudWatchState struct {
	client        *cloudwatch.Client
	namespace     string
	dashboardName string
	region        string
}

// CloudWatchOptions configures metric publishing. Static credentials are used
// when both keys are set, otherwise the default AWS credential chain applies.
type CloudWatchOptions struct {
	Region          string
	Namespace       string
	Dashboard       string
	AccessKeyID     string
	SecretAccessKey string
}

var (
	cwState atomic.Pointer[cloudWatchState]

	// cloudWatchPublishInterval bounds how often one metric series is sent.
	cloudWatchPublishInterval = 10 * time.Second

	timeNow            = time.Now
	publishMetricsFunc = publishMetrics

	metricPublishMu    sync.Mutex
	metricPublishTimes = make(map[string]time.Time)
)

func init() {
	cwState.Store(&cloudWatchState{
		namespace:     "Bookflow",
		dashboardName: "Bookflow",
	})
}

// InitCloudWatch creates the CloudWatch client and applies the embedded
// dashboard. When the client cannot be created the function logs a warning
// and leaves publishing disabled.
func InitCloudWatch(ctx context.Context, opts CloudWatchOptions) {
	log := logger.GetLogger().WithComponent("cloudwatch")

	region := opts.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	loadOpts := []func(*config.LoadOptions) error{}
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return
	}

	state := cloudWatchState{}
	if current := cwState.Load(); current != nil {
		state = *current
	}

	state.client = cloudwatch.NewFromConfig(cfg)
	if opts.Namespace != "" {
		state.namespace = opts.Namespace
	}
	if opts.Dashboard != "" {
		state.dashboardName = opts.Dashboard
	}
	state.region = region
	if cfg.Region != "" {
		state.region = cfg.Region
	}

	cwState.Store(&state)

	log.WithFields(logger.Fields{
		"region":    state.region,
		"namespace": state.namespace,
	}).Info("initialized CloudWatch client")

	if err := CreateDashboardFromTemplate(ctx); err != nil {
		log.WithError(err).Warn("failed to create CloudWatch dashboard")
	}
}

// EmitMetric logs the metric locally, hands it to registered handlers and
// publishes it to CloudWatch when configured.
func EmitMetric(log *logger.Log, component string, metric string, value interface{}, metricType string, fields logger.Fields) {
	if metric == "" {
		return
	}
	if log == nil {
		log = logger.GetLogger()
	}

	event := newMetric(component, metric, value, metricType, fields)

	logFields := make(logger.Fields, len(event.Fields)+3)
	for k, v := range event.Fields {
		logFields[k] = v
	}
	logFields["metric"] = event.Name
	logFields["metric_type"] = string(event.Type)
	logFields["value"] = event.Value
	log.WithComponent(component).WithFields(logFields).Debug("metric")

	handlers.dispatch(event)

	numericValue, ok := toFloat64(event.Value)
	if !ok {
		logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{"metric": event.Name}).Debug("non-numeric metric value; skipping publish")
		return
	}

	publishMetricDatum(event, numericValue)
}

// CreateDashboardFromTemplate applies the embedded dashboard definition to the
// configured CloudWatch dashboard.
func CreateDashboardFromTemplate(ctx context.Context) error {
	state := cwState.Load()
	if state == nil || state.client == nil {
		return nil
	}

	region := state.region
	if region == "" {
		region = "us-east-1"
	}
	body := strings.NewReplacer(
		"${NAMESPACE}", state.namespace,
		"${REGION}", region,
	).Replace(dashboardTemplate)

	if !json.Valid([]byte(body)) {
		return fmt.Errorf("dashboard template is not valid JSON after substitution")
	}

	_, err := state.client.PutDashboard(ctx, &cloudwatch.PutDashboardInput{
		DashboardName: aws.String(state.dashboardName),
		DashboardBody: aws.String(body),
	})
	if err != nil {
		return err
	}

	logger.GetLogger().WithComponent("cloudwatch").Debug("updated CloudWatch dashboard from template")
	return nil
}

func publishMetricDatum(metric Metric, value float64) {
	state := cwState.Load()
	if state == nil || state.client == nil {
		return
	}
	if !shouldPublish(metric) {
		return
	}

	unit := cwtypes.StandardUnitCount
	if rawUnit, ok := metric.Fields["unit"]; ok {
		if unitStr, ok := rawUnit.(string); ok {
			if parsed, found := metricUnitFromString(unitStr); found {
				unit = parsed
			}
		}
	}

	dims := []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(metric.Component)}}
	for k, v := range metric.Fields {
		if k == "unit" {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(s)})
		}
	}

	ts := metric.Timestamp
	if ts.IsZero() {
		ts = timeNow()
	}

	data := []cwtypes.MetricDatum{{
		MetricName: aws.String(metric.Name),
		Dimensions: dims,
		Timestamp:  aws.Time(ts),
		Unit:       unit,
		Value:      aws.Float64(value),
	}}
	publishMetricsFunc(context.Background(), state, data)
}

// shouldPublish throttles each component/name/dimension series to one datum
// per cloudWatchPublishInterval.
func shouldPublish(metric Metric) bool {
	key := seriesKey(metric)
	now := timeNow()

	metricPublishMu.Lock()
	defer metricPublishMu.Unlock()

	if last, ok := metricPublishTimes[key]; ok && now.Sub(last) < cloudWatchPublishInterval {
		return false
	}
	metricPublishTimes[key] = now
	return true
}

func seriesKey(metric Metric) string {
	parts := make([]string, 0, len(metric.Fields)+2)
	parts = append(parts, metric.Component, metric.Name)
	for k, v := range metric.Fields {
		if s, ok := v.(string); ok {
			parts = append(parts, k+"="+s)
		}
	}
	sort.Strings(parts[2:])
	return strings.Join(parts, "|")
}

func resetMetricPublishTimes() {
	metricPublishMu.Lock()
	metricPublishTimes = make(map[string]time.Time)
	metricPublishMu.Unlock()
}

func publishMetrics(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
	if state == nil || state.client == nil || len(data) == 0 {
		return
	}

	if _, err := state.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(state.namespace),
		MetricData: data,
	}); err != nil {
		logger.GetLogger().WithComponent("cloudwatch").WithError(err).Warn("failed to publish CloudWatch metrics")
		return
	}

	logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{"metrics": len(data)}).Debug("published metrics to CloudWatch")
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func metricUnitFromString(unit string) (cwtypes.StandardUnit, bool) {
	switch strings.ToLower(unit) {
	case "count":
		return cwtypes.StandardUnitCount, true
	case "percent":
		return cwtypes.StandardUnitPercent, true
	case "bytes":
		return cwtypes.StandardUnitBytes, true
	case "milliseconds":
		return cwtypes.StandardUnitMilliseconds, true
	default:
		return cwtypes.StandardUnitCount, false
	}
}
