package awsx

import (
	"context"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/confirmly/confirmation-engine/internal/logger"
)

// Metrics emits operational counters to CloudWatch. Emission is best-effort:
// a failed PutMetricData is logged and swallowed so metrics never break the
// paths they observe.
type Metrics struct {
	client    CloudWatchAPI
	namespace string
}

func NewMetrics(client CloudWatchAPI, namespace string) *Metrics {
	if namespace == "" {
		namespace = "ConfirmationEngine"
	}
	return &Metrics{client: client, namespace: namespace}
}

// Count emits a single counter datum with optional dimensions.
func (m *Metrics) Count(ctx context.Context, name string, value float64, dims map[string]string) {
	if m == nil || m.client == nil {
		return
	}
	datum := cwtypes.MetricDatum{
		MetricName: sdkaws.String(name),
		Value:      sdkaws.Float64(value),
		Unit:       cwtypes.StandardUnitCount,
		Timestamp:  sdkaws.Time(time.Now().UTC()),
	}
	for k, v := range dims {
		datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{
			Name:  sdkaws.String(k),
			Value: sdkaws.String(v),
		})
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		logger.Warn("put metric data failed", "metric", name, "err", err)
	}
}
