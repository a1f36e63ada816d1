// Package aws implements the AWS service adapters for Kartta.
package aws

import (
	"context"
	"fmt"
	"iter"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/memorydb"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/yairfalse/kartta/internal/plugin"
	"github.com/yairfalse/kartta/pkg/resource"
)

// Throttle retry defaults.
const (
	DefaultThrottleRetries   = 3
	DefaultThrottleBaseDelay = 200 * time.Millisecond
	maxThrottleDelay         = 5 * time.Second
)

// Config holds AWS adapter configuration.
type Config struct {
	Profile           string
	ThrottleRetries   int
	ThrottleBaseDelay time.Duration
}

// Clients is the set of service clients for one region
// (interfaces for testability).
type Clients struct {
	EC2            EC2API
	RDS            RDSAPI
	ELB            ELBAPI
	S3             S3API
	EKS            EKSAPI
	ASG            AutoScalingAPI
	Lambda         LambdaAPI
	DynamoDB       DynamoDBAPI
	SQS            SQSAPI
	ECS            ECSAPI
	ECR            ECRAPI
	KMS            KMSAPI
	MemoryDB       MemoryDBAPI
	Redshift       RedshiftAPI
	CloudTrail     CloudTrailAPI
	CloudWatchLogs CloudWatchLogsAPI
}

func newClients(cfg aws.Config) *Clients {
	return &Clients{
		EC2:            ec2.NewFromConfig(cfg),
		RDS:            rds.NewFromConfig(cfg),
		ELB:            elasticloadbalancingv2.NewFromConfig(cfg),
		S3:             s3.NewFromConfig(cfg),
		EKS:            eks.NewFromConfig(cfg),
		ASG:            autoscaling.NewFromConfig(cfg),
		Lambda:         lambda.NewFromConfig(cfg),
		DynamoDB:       dynamodb.NewFromConfig(cfg),
		SQS:            sqs.NewFromConfig(cfg),
		ECS:            ecs.NewFromConfig(cfg),
		ECR:            ecr.NewFromConfig(cfg),
		KMS:            kms.NewFromConfig(cfg),
		MemoryDB:       memorydb.NewFromConfig(cfg),
		Redshift:       redshift.NewFromConfig(cfg),
		CloudTrail:     cloudtrail.NewFromConfig(cfg),
		CloudWatchLogs: cloudwatchlogs.NewFromConfig(cfg),
	}
}

// Provider owns the shared AWS configuration and per-region clients.
type Provider struct {
	retries   int
	baseDelay time.Duration

	// builds the client set for a region; swapped in tests
	factory func(region string) *Clients

	mu      sync.Mutex
	clients map[string]*Clients
}

// New loads the default credential chain once. Regions are bound lazily,
// one client set per region on first use.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	opts := []func(*config.LoadOptions) error{
		// throttling is retried by the adapters, nothing else is retried
		config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newProvider(cfg, func(region string) *Clients {
		regional := awsCfg.Copy()
		regional.Region = region
		return newClients(regional)
	}), nil
}

func newProvider(cfg Config, factory func(region string) *Clients) *Provider {
	retries := cfg.ThrottleRetries
	if retries < 0 {
		retries = 0
	}
	delay := cfg.ThrottleBaseDelay
	if delay <= 0 {
		delay = DefaultThrottleBaseDelay
	}
	return &Provider{
		retries:   retries,
		baseDelay: delay,
		factory:   factory,
		clients:   make(map[string]*Clients),
	}
}

func (p *Provider) regionClients(region string) *Clients {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.clients[region]
	if !ok {
		c = p.factory(region)
		p.clients[region] = c
	}
	return c
}

// emitFunc hands one record to the consumer; false means stop.
type emitFunc func(resource.Record) bool

type lister struct {
	kind resource.Kind
	fn   func(ctx context.Context, c *Clients, region string, emit emitFunc) error
}

func (p *Provider) listers() []lister {
	return []lister{
		{resource.KindEC2, p.listEC2},
		{resource.KindEBS, p.listEBSVolumes},
		{resource.KindVPC, p.listVPCs},
		{resource.KindSubnet, p.listSubnets},
		{resource.KindSecurityGroup, p.listSecurityGroups},
		{resource.KindEIP, p.listElasticIPs},
		{resource.KindNATGateway, p.listNATGateways},
		{resource.KindS3, p.listS3},
		{resource.KindRDS, p.listRDS},
		{resource.KindLambda, p.listLambda},
		{resource.KindECS, p.listECS},
		{resource.KindEKS, p.listEKS},
		{resource.KindDynamoDB, p.listDynamoDB},
		{resource.KindELB, p.listELB},
		{resource.KindASG, p.listASG},
		{resource.KindSQS, p.listSQS},
		{resource.KindECR, p.listECR},
		{resource.KindKMS, p.listKMS},
		{resource.KindMemoryDB, p.listMemoryDB},
		{resource.KindRedshift, p.listRedshift},
		{resource.KindCloudTrail, p.listCloudTrail},
		{resource.KindCloudWatchLogs, p.listCloudWatchLogs},
	}
}

// Adapters returns one adapter per supported kind.
func (p *Provider) Adapters() []plugin.Adapter {
	ls := p.listers()
	adapters := make([]plugin.Adapter, 0, len(ls))
	for _, l := range ls {
		adapters = append(adapters, &adapter{p: p, lister: l})
	}
	return adapters
}

// Register adds every adapter to reg.
func (p *Provider) Register(reg *plugin.Registry) {
	for _, a := range p.Adapters() {
		reg.Register(a)
	}
}

type adapter struct {
	p      *Provider
	lister lister
}

func (a *adapter) Kind() resource.Kind {
	return a.lister.kind
}

func (a *adapter) List(ctx context.Context, region string) iter.Seq2[resource.Record, error] {
	return func(yield func(resource.Record, error) bool) {
		c := a.p.regionClients(region)
		err := a.lister.fn(ctx, c, region, func(r resource.Record) bool {
			return yield(r, nil)
		})
		if err != nil {
			yield(resource.Record{}, err)
		}
	}
}

// helper to create a record with common fields
func newRecord(kind resource.Kind, region, id, status, name string) resource.Record {
	return resource.Record{
		Kind:   kind,
		Region: region,
		ID:     id,
		Name:   name,
		Status: status,
		Labels: make(map[string]string),
		Attrs:  make(map[string]string),
	}
}

// Attribute setters omit absent values.

func setString(attrs map[string]string, key string, v *string) {
	if v != nil && *v != "" {
		attrs[key] = *v
	}
}

func setValue(attrs map[string]string, key, v string) {
	if v != "" {
		attrs[key] = v
	}
}

func setInt32(attrs map[string]string, key string, v *int32) {
	if v != nil {
		attrs[key] = strconv.Itoa(int(*v))
	}
}

func setInt64(attrs map[string]string, key string, v *int64) {
	if v != nil {
		attrs[key] = strconv.FormatInt(*v, 10)
	}
}

func setBool(attrs map[string]string, key string, v *bool) {
	if v != nil {
		attrs[key] = strconv.FormatBool(*v)
	}
}

func setTime(attrs map[string]string, key string, v *time.Time) {
	if v != nil && !v.IsZero() {
		attrs[key] = v.UTC().Format(time.RFC3339)
	}
}
