package aws

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/yairfalse/kartta/pkg/resource"
)

// listEC2 lists EC2 instances.
func (p *Provider) listEC2(ctx context.Context, c *Clients, region string, emit emitFunc) error {
	var nextToken *string
	for {
		output, err := call(ctx, p, "describe instances", func(ctx context.Context) (*ec2.DescribeInstancesOutput, error) {
			return c.EC2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{NextToken: nextToken})
		})
		if err != nil {
			return err
		}

		for _, reservation := range output.Reservations {
			for _, instance := range reservation.Instances {
				if !emit(convertEC2Instance(region, instance)) {
					return nil
				}
			}
		}

		if output.NextToken == nil {
			return nil
		}
		nextToken = output.NextToken
	}
}

func convertEC2Instance(region string, instance ec2types.Instance) resource.Record {
	status := ""
	if instance.State != nil {
		status = string(instance.State.Name)
	}
	r := newRecord(resource.KindEC2, region, aws.ToString(instance.InstanceId), status, extractNameTag(instance.Tags))
	setLabels(r.Labels, instance.Tags)
	setValue(r.Attrs, "instance_type", string(instance.InstanceType))
	if instance.Placement != nil {
		setString(r.Attrs, "az", instance.Placement.AvailabilityZone)
	}
	setString(r.Attrs, "vpc_id", instance.VpcId)
	setString(r.Attrs, "subnet_id", instance.SubnetId)
	setString(r.Attrs, "private_ip", instance.PrivateIpAddress)
	setString(r.Attrs, "public_ip", instance.PublicIpAddress)
	setTime(r.Attrs, "launched", instance.LaunchTime)
	return r
}

// listEBSVolumes lists EBS volumes.
func (p *Provider) listEBSVolumes(ctx context.Context, c *Clients, region string, emit emitFunc) error {
	var nextToken *string
	for {
		output, err := call(ctx, p, "describe volumes", func(ctx context.Context) (*ec2.DescribeVolumesOutput, error) {
			return c.EC2.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{NextToken: nextToken})
		})
		if err != nil {
			return err
		}

		for _, vol := range output.Volumes {
			if !emit(convertEBSVolume(region, vol)) {
				return nil
			}
		}

		if output.NextToken == nil {
			return nil
		}
		nextToken = output.NextToken
	}
}

func convertEBSVolume(region string, vol ec2types.Volume) resource.Record {
	r := newRecord(resource.KindEBS, region, aws.ToString(vol.VolumeId), string(vol.State), extractNameTag(vol.Tags))
	setLabels(r.Labels, vol.Tags)
	setInt32(r.Attrs, "size_gb", vol.Size)
	setValue(r.Attrs, "type", string(vol.VolumeType))
	setString(r.Attrs, "az", vol.AvailabilityZone)
	setBool(r.Attrs, "encrypted", vol.Encrypted)
	r.Attrs["attached"] = strconv.FormatBool(len(vol.Attachments) > 0)
	return r
}

// listVPCs lists VPCs.
func (p *Provider) listVPCs(ctx context.Context, c *Clients, region string, emit emitFunc) error {
	var nextToken *string
	for {
		output, err := call(ctx, p, "describe vpcs", func(ctx context.Context) (*ec2.DescribeVpcsOutput, error) {
			return c.EC2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{NextToken: nextToken})
		})
		if err != nil {
			return err
		}

		for _, vpc := range output.Vpcs {
			if !emit(convertVPC(region, vpc)) {
				return nil
			}
		}

		if output.NextToken == nil {
			return nil
		}
		nextToken = output.NextToken
	}
}

func convertVPC(region string, vpc ec2types.Vpc) resource.Record {
	r := newRecord(resource.KindVPC, region, aws.ToString(vpc.VpcId), string(vpc.State), extractNameTag(vpc.Tags))
	setLabels(r.Labels, vpc.Tags)
	setString(r.Attrs, "cidr", vpc.CidrBlock)
	setBool(r.Attrs, "is_default", vpc.IsDefault)
	return r
}

// listSubnets lists VPC subnets.
func (p *Provider) listSubnets(ctx context.Context, c *Clients, region string, emit emitFunc) error {
	var nextToken *string
	for {
		output, err := call(ctx, p, "describe subnets", func(ctx context.Context) (*ec2.DescribeSubnetsOutput, error) {
			return c.EC2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{NextToken: nextToken})
		})
		if err != nil {
			return err
		}

		for _, subnet := range output.Subnets {
			if !emit(convertSubnet(region, subnet)) {
				return nil
			}
		}

		if output.NextToken == nil {
			return nil
		}
		nextToken = output.NextToken
	}
}

func convertSubnet(region string, subnet ec2types.Subnet) resource.Record {
	r := newRecord(resource.KindSubnet, region, aws.ToString(subnet.SubnetId), string(subnet.State), extractNameTag(subnet.Tags))
	setLabels(r.Labels, subnet.Tags)
	setString(r.Attrs, "vpc_id", subnet.VpcId)
	setString(r.Attrs, "cidr", subnet.CidrBlock)
	setString(r.Attrs, "az", subnet.AvailabilityZone)
	setBool(r.Attrs, "public", subnet.MapPublicIpOnLaunch)
	setInt32(r.Attrs, "available_ips", subnet.AvailableIpAddressCount)
	return r
}

// listSecurityGroups lists security groups.
func (p *Provider) listSecurityGroups(ctx context.Context, c *Clients, region string, emit emitFunc) error {
	var nextToken *string
	for {
		output, err := call(ctx, p, "describe security groups", func(ctx context.Context) (*ec2.DescribeSecurityGroupsOutput, error) {
			return c.EC2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{NextToken: nextToken})
		})
		if err != nil {
			return err
		}

		for _, sg := range output.SecurityGroups {
			if !emit(convertSecurityGroup(region, sg)) {
				return nil
			}
		}

		if output.NextToken == nil {
			return nil
		}
		nextToken = output.NextToken
	}
}

func convertSecurityGroup(region string, sg ec2types.SecurityGroup) resource.Record {
	// security groups have no lifecycle state
	r := newRecord(resource.KindSecurityGroup, region, aws.ToString(sg.GroupId), "", aws.ToString(sg.GroupName))
	setLabels(r.Labels, sg.Tags)
	setString(r.Attrs, "vpc_id", sg.VpcId)
	setString(r.Attrs, "description", sg.Description)
	r.Attrs["inbound_rules"] = strconv.Itoa(len(sg.IpPermissions))
	r.Attrs["outbound_rules"] = strconv.Itoa(len(sg.IpPermissionsEgress))
	return r
}

// listElasticIPs lists Elastic IPs (no pagination).
func (p *Provider) listElasticIPs(ctx context.Context, c *Clients, region string, emit emitFunc) error {
	output, err := call(ctx, p, "describe addresses", func(ctx context.Context) (*ec2.DescribeAddressesOutput, error) {
		return c.EC2.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{})
	})
	if err != nil {
		return err
	}

	for _, addr := range output.Addresses {
		if !emit(convertElasticIP(region, addr)) {
			return nil
		}
	}
	return nil
}

func convertElasticIP(region string, addr ec2types.Address) resource.Record {
	status := "unattached"
	if addr.AssociationId != nil {
		status = "attached"
	}
	r := newRecord(resource.KindEIP, region, aws.ToString(addr.AllocationId), status, aws.ToString(addr.PublicIp))
	setLabels(r.Labels, addr.Tags)
	setString(r.Attrs, "public_ip", addr.PublicIp)
	setString(r.Attrs, "private_ip", addr.PrivateIpAddress)
	setString(r.Attrs, "instance_id", addr.InstanceId)
	setValue(r.Attrs, "domain", string(addr.Domain))
	return r
}

// listNATGateways lists NAT gateways.
func (p *Provider) listNATGateways(ctx context.Context, c *Clients, region string, emit emitFunc) error {
	var nextToken *string
	for {
		output, err := call(ctx, p, "describe nat gateways", func(ctx context.Context) (*ec2.DescribeNatGatewaysOutput, error) {
			return c.EC2.DescribeNatGateways(ctx, &ec2.DescribeNatGatewaysInput{NextToken: nextToken})
		})
		if err != nil {
			return err
		}

		for _, nat := range output.NatGateways {
			if !emit(convertNATGateway(region, nat)) {
				return nil
			}
		}

		if output.NextToken == nil {
			return nil
		}
		nextToken = output.NextToken
	}
}

func convertNATGateway(region string, nat ec2types.NatGateway) resource.Record {
	r := newRecord(resource.KindNATGateway, region, aws.ToString(nat.NatGatewayId), string(nat.State), extractNameTag(nat.Tags))
	setLabels(r.Labels, nat.Tags)
	setString(r.Attrs, "vpc_id", nat.VpcId)
	setString(r.Attrs, "subnet_id", nat.SubnetId)
	setValue(r.Attrs, "connectivity", string(nat.ConnectivityType))
	if len(nat.NatGatewayAddresses) > 0 {
		setString(r.Attrs, "public_ip", nat.NatGatewayAddresses[0].PublicIp)
	}
	return r
}

// extractNameTag extracts the Name tag from EC2 tags.
func extractNameTag(tags []ec2types.Tag) string {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == "Name" {
			return aws.ToString(tag.Value)
		}
	}
	return ""
}

func setLabels(labels map[string]string, tags []ec2types.Tag) {
	for _, tag := range tags {
		labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
}
