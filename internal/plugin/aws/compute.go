package aws

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	asgtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/yairfalse/kartta/pkg/resource"
)

// DescribeClusters accepts at most 100 clusters per call.
const ecsDescribeBatch = 100

// listASG lists Auto Scaling groups.
func (p *Provider) listASG(ctx context.Context, c *Clients, region string, emit emitFunc) error {
	var nextToken *string
	for {
		output, err := call(ctx, p, "describe auto scaling groups", func(ctx context.Context) (*autoscaling.DescribeAutoScalingGroupsOutput, error) {
			return c.ASG.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{NextToken: nextToken})
		})
		if err != nil {
			return err
		}

		for _, asg := range output.AutoScalingGroups {
			if !emit(convertASG(region, asg)) {
				return nil
			}
		}

		if output.NextToken == nil {
			return nil
		}
		nextToken = output.NextToken
	}
}

func convertASG(region string, asg asgtypes.AutoScalingGroup) resource.Record {
	status := "active"
	if aws.ToInt32(asg.DesiredCapacity) == 0 {
		status = "stopped"
	}
	if asg.Status != nil {
		// only set while the group is being deleted
		status = aws.ToString(asg.Status)
	}
	r := newRecord(resource.KindASG, region, aws.ToString(asg.AutoScalingGroupARN), status, aws.ToString(asg.AutoScalingGroupName))
	for _, tag := range asg.Tags {
		r.Labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	setInt32(r.Attrs, "min_size", asg.MinSize)
	setInt32(r.Attrs, "max_size", asg.MaxSize)
	setInt32(r.Attrs, "desired", asg.DesiredCapacity)
	r.Attrs["instances"] = strconv.Itoa(len(asg.Instances))
	setTime(r.Attrs, "created", asg.CreatedTime)
	return r
}

// listLambda lists Lambda functions.
func (p *Provider) listLambda(ctx context.Context, c *Clients, region string, emit emitFunc) error {
	var marker *string
	for {
		output, err := call(ctx, p, "list functions", func(ctx context.Context) (*lambda.ListFunctionsOutput, error) {
			return c.Lambda.ListFunctions(ctx, &lambda.ListFunctionsInput{Marker: marker})
		})
		if err != nil {
			return err
		}

		for _, fn := range output.Functions {
			if !emit(convertLambda(region, fn)) {
				return nil
			}
		}

		if output.NextMarker == nil {
			return nil
		}
		marker = output.NextMarker
	}
}

func convertLambda(region string, fn lambdatypes.FunctionConfiguration) resource.Record {
	r := newRecord(resource.KindLambda, region, aws.ToString(fn.FunctionArn), string(fn.State), aws.ToString(fn.FunctionName))
	setValue(r.Attrs, "runtime", string(fn.Runtime))
	setValue(r.Attrs, "package_type", string(fn.PackageType))
	setInt32(r.Attrs, "memory_mb", fn.MemorySize)
	setInt32(r.Attrs, "timeout_sec", fn.Timeout)
	setString(r.Attrs, "handler", fn.Handler)
	setString(r.Attrs, "last_modified", fn.LastModified)
	return r
}

// listECS lists ECS clusters, described in batches.
func (p *Provider) listECS(ctx context.Context, c *Clients, region string, emit emitFunc) error {
	var clusterArns []string
	var nextToken *string
	for {
		output, err := call(ctx, p, "list ecs clusters", func(ctx context.Context) (*ecs.ListClustersOutput, error) {
			return c.ECS.ListClusters(ctx, &ecs.ListClustersInput{NextToken: nextToken})
		})
		if err != nil {
			return err
		}
		clusterArns = append(clusterArns, output.ClusterArns...)

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	for i := 0; i < len(clusterArns); i += ecsDescribeBatch {
		batch := clusterArns[i:min(i+ecsDescribeBatch, len(clusterArns))]

		output, err := call(ctx, p, "describe ecs clusters", func(ctx context.Context) (*ecs.DescribeClustersOutput, error) {
			return c.ECS.DescribeClusters(ctx, &ecs.DescribeClustersInput{
				Clusters: batch,
				Include:  []ecstypes.ClusterField{ecstypes.ClusterFieldTags},
			})
		})
		if err != nil {
			return err
		}

		for _, cluster := range output.Clusters {
			if !emit(convertECSCluster(region, cluster)) {
				return nil
			}
		}
	}
	return nil
}

func convertECSCluster(region string, cluster ecstypes.Cluster) resource.Record {
	r := newRecord(resource.KindECS, region, aws.ToString(cluster.ClusterArn), aws.ToString(cluster.Status), aws.ToString(cluster.ClusterName))
	for _, tag := range cluster.Tags {
		r.Labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	r.Attrs["services"] = strconv.Itoa(int(cluster.ActiveServicesCount))
	r.Attrs["tasks_running"] = strconv.Itoa(int(cluster.RunningTasksCount))
	r.Attrs["tasks_pending"] = strconv.Itoa(int(cluster.PendingTasksCount))
	r.Attrs["container_instances"] = strconv.Itoa(int(cluster.RegisteredContainerInstancesCount))
	return r
}

// listEKS lists EKS clusters. A cluster deleted between list and
// describe is skipped.
func (p *Provider) listEKS(ctx context.Context, c *Clients, region string, emit emitFunc) error {
	var nextToken *string
	for {
		output, err := call(ctx, p, "list eks clusters", func(ctx context.Context) (*eks.ListClustersOutput, error) {
			return c.EKS.ListClusters(ctx, &eks.ListClustersInput{NextToken: nextToken})
		})
		if err != nil {
			return err
		}

		for _, name := range output.Clusters {
			desc, err := call(ctx, p, "describe eks cluster", func(ctx context.Context) (*eks.DescribeClusterOutput, error) {
				return c.EKS.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(name)})
			})
			if isNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			if desc.Cluster == nil {
				continue
			}
			if !emit(convertEKSCluster(region, desc.Cluster)) {
				return nil
			}
		}

		if output.NextToken == nil {
			return nil
		}
		nextToken = output.NextToken
	}
}

func convertEKSCluster(region string, cluster *ekstypes.Cluster) resource.Record {
	r := newRecord(resource.KindEKS, region, aws.ToString(cluster.Arn), string(cluster.Status), aws.ToString(cluster.Name))
	for k, v := range cluster.Tags {
		r.Labels[k] = v
	}
	setString(r.Attrs, "version", cluster.Version)
	setString(r.Attrs, "platform_version", cluster.PlatformVersion)
	setString(r.Attrs, "endpoint", cluster.Endpoint)
	setTime(r.Attrs, "created", cluster.CreatedAt)
	return r
}

// listELB lists Elastic Load Balancers (v2).
func (p *Provider) listELB(ctx context.Context, c *Clients, region string, emit emitFunc) error {
	var marker *string
	for {
		output, err := call(ctx, p, "describe load balancers", func(ctx context.Context) (*elasticloadbalancingv2.DescribeLoadBalancersOutput, error) {
			return c.ELB.DescribeLoadBalancers(ctx, &elasticloadbalancingv2.DescribeLoadBalancersInput{Marker: marker})
		})
		if err != nil {
			return err
		}

		for _, lb := range output.LoadBalancers {
			if !emit(convertELB(region, lb)) {
				return nil
			}
		}

		if output.NextMarker == nil {
			return nil
		}
		marker = output.NextMarker
	}
}

func convertELB(region string, lb elbtypes.LoadBalancer) resource.Record {
	status := ""
	if lb.State != nil {
		status = string(lb.State.Code)
	}
	r := newRecord(resource.KindELB, region, aws.ToString(lb.LoadBalancerArn), status, aws.ToString(lb.LoadBalancerName))
	setValue(r.Attrs, "type", string(lb.Type))
	setValue(r.Attrs, "scheme", string(lb.Scheme))
	setString(r.Attrs, "vpc_id", lb.VpcId)
	setString(r.Attrs, "dns_name", lb.DNSName)
	setTime(r.Attrs, "created", lb.CreatedTime)
	return r
}
