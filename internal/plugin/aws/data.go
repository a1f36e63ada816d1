package aws

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/aws/aws-sdk-go-v2/service/memorydb"
	memorydbtypes "github.com/aws/aws-sdk-go-v2/service/memorydb/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	redshifttypes "github.com/aws/aws-sdk-go-v2/service/redshift/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/yairfalse/kartta/pkg/resource"
)

// listS3 lists the buckets located in region. ListBuckets is account
// wide, so each bucket's location is resolved and foreign buckets skipped.
func (p *Provider) listS3(ctx context.Context, c *Clients, region string, emit emitFunc) error {
	output, err := call(ctx, p, "list buckets", func(ctx context.Context) (*s3.ListBucketsOutput, error) {
		return c.S3.ListBuckets(ctx, &s3.ListBucketsInput{})
	})
	if err != nil {
		return err
	}

	for _, bucket := range output.Buckets {
		loc, err := call(ctx, p, "get bucket location", func(ctx context.Context) (*s3.GetBucketLocationOutput, error) {
			return c.S3.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: bucket.Name})
		})
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		if bucketRegion(loc.LocationConstraint) != region {
			continue
		}
		if !emit(convertBucket(region, bucket)) {
			return nil
		}
	}
	return nil
}

// bucketRegion normalizes legacy location constraints.
func bucketRegion(c s3types.BucketLocationConstraint) string {
	switch c {
	case "":
		return "us-east-1"
	case s3types.BucketLocationConstraintEu:
		return "eu-west-1"
	default:
		return string(c)
	}
}

func convertBucket(region string, bucket s3types.Bucket) resource.Record {
	name := aws.ToString(bucket.Name)
	// buckets have no lifecycle state
	r := newRecord(resource.KindS3, region, name, "", name)
	setTime(r.Attrs, "created", bucket.CreationDate)
	return r
}

// listRDS lists RDS instances.
func (p *Provider) listRDS(ctx context.Context, c *Clients, region string, emit emitFunc) error {
	var marker *string
	for {
		output, err := call(ctx, p, "describe db instances", func(ctx context.Context) (*rds.DescribeDBInstancesOutput, error) {
			return c.RDS.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{Marker: marker})
		})
		if err != nil {
			return err
		}

		for _, instance := range output.DBInstances {
			if !emit(convertRDSInstance(region, instance)) {
				return nil
			}
		}

		if output.Marker == nil {
			return nil
		}
		marker = output.Marker
	}
}

func convertRDSInstance(region string, instance rdstypes.DBInstance) resource.Record {
	id := aws.ToString(instance.DBInstanceIdentifier)
	r := newRecord(resource.KindRDS, region, id, aws.ToString(instance.DBInstanceStatus), id)
	for _, tag := range instance.TagList {
		r.Labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	setString(r.Attrs, "arn", instance.DBInstanceArn)
	setString(r.Attrs, "engine", instance.Engine)
	setString(r.Attrs, "engine_version", instance.EngineVersion)
	setString(r.Attrs, "instance_class", instance.DBInstanceClass)
	setInt32(r.Attrs, "storage_gb", instance.AllocatedStorage)
	setBool(r.Attrs, "multi_az", instance.MultiAZ)
	if instance.Endpoint != nil {
		setString(r.Attrs, "endpoint", instance.Endpoint.Address)
		setInt32(r.Attrs, "port", instance.Endpoint.Port)
	}
	setTime(r.Attrs, "created", instance.InstanceCreateTime)
	return r
}

// listDynamoDB lists DynamoDB tables.
func (p *Provider) listDynamoDB(ctx context.Context, c *Clients, region string, emit emitFunc) error {
	var lastKey *string
	for {
		output, err := call(ctx, p, "list tables", func(ctx context.Context) (*dynamodb.ListTablesOutput, error) {
			return c.DynamoDB.ListTables(ctx, &dynamodb.ListTablesInput{ExclusiveStartTableName: lastKey})
		})
		if err != nil {
			return err
		}

		for _, tableName := range output.TableNames {
			desc, err := call(ctx, p, "describe table", func(ctx context.Context) (*dynamodb.DescribeTableOutput, error) {
				return c.DynamoDB.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)})
			})
			if isNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			if desc.Table == nil {
				continue
			}
			if !emit(convertDynamoDBTable(region, desc.Table)) {
				return nil
			}
		}

		if output.LastEvaluatedTableName == nil {
			return nil
		}
		lastKey = output.LastEvaluatedTableName
	}
}

func convertDynamoDBTable(region string, table *ddbtypes.TableDescription) resource.Record {
	r := newRecord(resource.KindDynamoDB, region, aws.ToString(table.TableArn), string(table.TableStatus), aws.ToString(table.TableName))
	setInt64(r.Attrs, "items", table.ItemCount)
	setInt64(r.Attrs, "size_bytes", table.TableSizeBytes)
	if table.BillingModeSummary != nil {
		setValue(r.Attrs, "billing_mode", string(table.BillingModeSummary.BillingMode))
	}
	setTime(r.Attrs, "created", table.CreationDateTime)
	return r
}

// listMemoryDB lists MemoryDB clusters.
func (p *Provider) listMemoryDB(ctx context.Context, c *Clients, region string, emit emitFunc) error {
	var nextToken *string
	for {
		output, err := call(ctx, p, "describe memorydb clusters", func(ctx context.Context) (*memorydb.DescribeClustersOutput, error) {
			return c.MemoryDB.DescribeClusters(ctx, &memorydb.DescribeClustersInput{NextToken: nextToken})
		})
		if err != nil {
			return err
		}

		for _, cluster := range output.Clusters {
			if !emit(convertMemoryDBCluster(region, cluster)) {
				return nil
			}
		}

		if output.NextToken == nil {
			return nil
		}
		nextToken = output.NextToken
	}
}

func convertMemoryDBCluster(region string, cluster memorydbtypes.Cluster) resource.Record {
	r := newRecord(resource.KindMemoryDB, region, aws.ToString(cluster.ARN), aws.ToString(cluster.Status), aws.ToString(cluster.Name))
	setString(r.Attrs, "node_type", cluster.NodeType)
	setString(r.Attrs, "engine_version", cluster.EngineVersion)
	setBool(r.Attrs, "tls", cluster.TLSEnabled)
	setInt32(r.Attrs, "shards", cluster.NumberOfShards)
	return r
}

// listRedshift lists Redshift clusters.
func (p *Provider) listRedshift(ctx context.Context, c *Clients, region string, emit emitFunc) error {
	var marker *string
	for {
		output, err := call(ctx, p, "describe redshift clusters", func(ctx context.Context) (*redshift.DescribeClustersOutput, error) {
			return c.Redshift.DescribeClusters(ctx, &redshift.DescribeClustersInput{Marker: marker})
		})
		if err != nil {
			return err
		}

		for _, cluster := range output.Clusters {
			if !emit(convertRedshiftCluster(region, cluster)) {
				return nil
			}
		}

		if output.Marker == nil {
			return nil
		}
		marker = output.Marker
	}
}

func convertRedshiftCluster(region string, cluster redshifttypes.Cluster) resource.Record {
	id := aws.ToString(cluster.ClusterIdentifier)
	r := newRecord(resource.KindRedshift, region, id, aws.ToString(cluster.ClusterStatus), id)
	for _, tag := range cluster.Tags {
		r.Labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	setString(r.Attrs, "node_type", cluster.NodeType)
	setInt32(r.Attrs, "node_count", cluster.NumberOfNodes)
	setString(r.Attrs, "db_name", cluster.DBName)
	setBool(r.Attrs, "encrypted", cluster.Encrypted)
	setTime(r.Attrs, "created", cluster.ClusterCreateTime)
	return r
}

// listECR lists ECR repositories.
func (p *Provider) listECR(ctx context.Context, c *Clients, region string, emit emitFunc) error {
	var nextToken *string
	for {
		output, err := call(ctx, p, "describe repositories", func(ctx context.Context) (*ecr.DescribeRepositoriesOutput, error) {
			return c.ECR.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{NextToken: nextToken})
		})
		if err != nil {
			return err
		}

		for _, repo := range output.Repositories {
			if !emit(convertECRRepository(region, repo)) {
				return nil
			}
		}

		if output.NextToken == nil {
			return nil
		}
		nextToken = output.NextToken
	}
}

func convertECRRepository(region string, repo ecrtypes.Repository) resource.Record {
	r := newRecord(resource.KindECR, region, aws.ToString(repo.RepositoryArn), "", aws.ToString(repo.RepositoryName))
	setString(r.Attrs, "uri", repo.RepositoryUri)
	setString(r.Attrs, "registry_id", repo.RegistryId)
	setValue(r.Attrs, "tag_mutability", string(repo.ImageTagMutability))
	if repo.ImageScanningConfiguration != nil {
		r.Attrs["scan_on_push"] = strconv.FormatBool(repo.ImageScanningConfiguration.ScanOnPush)
	}
	setTime(r.Attrs, "created", repo.CreatedAt)
	return r
}
