package aws

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cttypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/yairfalse/kartta/pkg/resource"
)

// listSQS lists SQS queues.
func (p *Provider) listSQS(ctx context.Context, c *Clients, region string, emit emitFunc) error {
	var nextToken *string
	for {
		output, err := call(ctx, p, "list queues", func(ctx context.Context) (*sqs.ListQueuesOutput, error) {
			return c.SQS.ListQueues(ctx, &sqs.ListQueuesInput{NextToken: nextToken})
		})
		if err != nil {
			return err
		}

		for _, queueURL := range output.QueueUrls {
			r := newRecord(resource.KindSQS, region, queueURL, "", extractQueueName(queueURL))
			r.Attrs["url"] = queueURL
			if strings.HasSuffix(queueURL, ".fifo") {
				r.Attrs["fifo"] = "true"
			}
			if !emit(r) {
				return nil
			}
		}

		if output.NextToken == nil {
			return nil
		}
		nextToken = output.NextToken
	}
}

// extractQueueName extracts queue name from SQS URL.
func extractQueueName(queueURL string) string {
	if i := strings.LastIndexByte(queueURL, '/'); i >= 0 {
		return queueURL[i+1:]
	}
	return queueURL
}

// listKMS lists KMS keys. ListKeys carries only identifiers, so each key
// is described.
func (p *Provider) listKMS(ctx context.Context, c *Clients, region string, emit emitFunc) error {
	var marker *string
	for {
		output, err := call(ctx, p, "list keys", func(ctx context.Context) (*kms.ListKeysOutput, error) {
			return c.KMS.ListKeys(ctx, &kms.ListKeysInput{Marker: marker})
		})
		if err != nil {
			return err
		}

		for _, key := range output.Keys {
			desc, err := call(ctx, p, "describe key", func(ctx context.Context) (*kms.DescribeKeyOutput, error) {
				return c.KMS.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: key.KeyId})
			})
			if isNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			if desc.KeyMetadata == nil {
				continue
			}
			if !emit(convertKMSKey(region, desc.KeyMetadata)) {
				return nil
			}
		}

		if !output.Truncated || output.NextMarker == nil {
			return nil
		}
		marker = output.NextMarker
	}
}

func convertKMSKey(region string, key *kmstypes.KeyMetadata) resource.Record {
	r := newRecord(resource.KindKMS, region, aws.ToString(key.KeyId), string(key.KeyState), aws.ToString(key.Description))
	setString(r.Attrs, "arn", key.Arn)
	setValue(r.Attrs, "manager", string(key.KeyManager))
	setValue(r.Attrs, "key_spec", string(key.KeySpec))
	setValue(r.Attrs, "usage", string(key.KeyUsage))
	setBool(r.Attrs, "multi_region", key.MultiRegion)
	setTime(r.Attrs, "created", key.CreationDate)
	return r
}

// listCloudTrail lists trails whose home region is region.
func (p *Provider) listCloudTrail(ctx context.Context, c *Clients, region string, emit emitFunc) error {
	output, err := call(ctx, p, "describe trails", func(ctx context.Context) (*cloudtrail.DescribeTrailsOutput, error) {
		return c.CloudTrail.DescribeTrails(ctx, &cloudtrail.DescribeTrailsInput{IncludeShadowTrails: aws.Bool(false)})
	})
	if err != nil {
		return err
	}

	for _, trail := range output.TrailList {
		if home := aws.ToString(trail.HomeRegion); home != "" && home != region {
			continue
		}
		if !emit(convertTrail(region, trail)) {
			return nil
		}
	}
	return nil
}

func convertTrail(region string, trail cttypes.Trail) resource.Record {
	r := newRecord(resource.KindCloudTrail, region, aws.ToString(trail.TrailARN), "", aws.ToString(trail.Name))
	setString(r.Attrs, "s3_bucket", trail.S3BucketName)
	setBool(r.Attrs, "multi_region", trail.IsMultiRegionTrail)
	setBool(r.Attrs, "organization", trail.IsOrganizationTrail)
	setBool(r.Attrs, "log_validation", trail.LogFileValidationEnabled)
	setString(r.Attrs, "kms_key_id", trail.KmsKeyId)
	return r
}

// listCloudWatchLogs lists CloudWatch log groups.
func (p *Provider) listCloudWatchLogs(ctx context.Context, c *Clients, region string, emit emitFunc) error {
	var nextToken *string
	for {
		output, err := call(ctx, p, "describe log groups", func(ctx context.Context) (*cloudwatchlogs.DescribeLogGroupsOutput, error) {
			return c.CloudWatchLogs.DescribeLogGroups(ctx, &cloudwatchlogs.DescribeLogGroupsInput{NextToken: nextToken})
		})
		if err != nil {
			return err
		}

		for _, lg := range output.LogGroups {
			if !emit(convertLogGroup(region, lg)) {
				return nil
			}
		}

		if output.NextToken == nil {
			return nil
		}
		nextToken = output.NextToken
	}
}

func convertLogGroup(region string, lg cwltypes.LogGroup) resource.Record {
	r := newRecord(resource.KindCloudWatchLogs, region, aws.ToString(lg.Arn), "", aws.ToString(lg.LogGroupName))
	setInt64(r.Attrs, "stored_bytes", lg.StoredBytes)
	setInt32(r.Attrs, "retention_days", lg.RetentionInDays)
	setValue(r.Attrs, "class", string(lg.LogGroupClass))
	if lg.CreationTime != nil {
		created := time.UnixMilli(*lg.CreationTime)
		setTime(r.Attrs, "created", &created)
	}
	return r
}
