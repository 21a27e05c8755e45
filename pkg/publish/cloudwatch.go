package publish

import (
	"context"
	"errors"
	"fmt"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/rs/zerolog/log"
	"github.com/shooontan/udco2s/awso"
	"github.com/shooontan/udco2s/pkg/udco2s"
	"strconv"
	"time"
)

type CloudwatchPublisher struct {
	cw              CloudwatchClientProvider
	metricNamespace string
	deviceDimension string
}

type CloudwatchClientProvider interface {
	Client(ctx context.Context) (*cloudwatch.Client, error)
	Check(err error) error
}

func NewCloudwatchPublisher(
	cw CloudwatchClientProvider, metricNamespace string, deviceDimension string,
) CloudwatchPublisher {
	return CloudwatchPublisher{cw, metricNamespace, deviceDimension}
}

func (pub CloudwatchPublisher) PublishReading(ctx context.Context, device string, r udco2s.Reading) error {
	if err := pub.publishReading(ctx, device, r); err != nil {
		if !errors.Is(err, awso.ClientInvalidated) {
			return err
		}

		log.Warn().Msg("AWS credentials are expired, sleeping for 5 seconds then retrying")
		time.Sleep(5 * time.Second)

		if err := pub.publishReading(ctx, device, r); err != nil {
			return err
		}
	}
	return nil
}

func (pub CloudwatchPublisher) publishReading(ctx context.Context, device string, r udco2s.Reading) error {
	data, err := MetricData(device, pub.deviceDimension, r)
	if err != nil {
		return err
	}
	client, err := pub.cw.Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(pub.metricNamespace),
		MetricData: data,
	})
	if err != nil {
		return pub.cw.Check(err)
	}

	log.Debug().Str("device", device).Msg("published reading metrics")
	return nil
}

// MetricData converts a reading into one datum per measurement.
func MetricData(device string, deviceDimension string, r udco2s.Reading) ([]types.MetricDatum, error) {
	fields := []struct {
		name  string
		value string
		unit  types.StandardUnit
	}{
		{"CO2", r.CO2, types.StandardUnitCount},
		{"Humidity", r.Humidity, types.StandardUnitPercent},
		{"Temperature", r.Temperature, types.StandardUnitNone},
	}

	data := make([]types.MetricDatum, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f.value, 64)
		if err != nil {
			return nil, fmt.Errorf("%s value %q: %w", f.name, f.value, err)
		}
		data = append(data, types.MetricDatum{
			MetricName: aws.String(f.name),
			Dimensions: []types.Dimension{
				{
					Name:  aws.String(deviceDimension),
					Value: aws.String(device),
				},
			},
			Unit:  f.unit,
			Value: aws.Float64(v),
		})
	}
	return data, nil
}
