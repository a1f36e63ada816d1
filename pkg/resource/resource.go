// Package resource defines the unified resource model for Kartta.
package resource

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Kind identifies a service kind that can be enumerated in a region.
type Kind string

// Known service kinds.
const (
	KindEC2            Kind = "ec2"
	KindEBS            Kind = "ebs"
	KindVPC            Kind = "vpc"
	KindSubnet         Kind = "subnet"
	KindSecurityGroup  Kind = "security_group"
	KindEIP            Kind = "eip"
	KindNATGateway     Kind = "nat_gateway"
	KindS3             Kind = "s3"
	KindRDS            Kind = "rds"
	KindLambda         Kind = "lambda"
	KindECS            Kind = "ecs"
	KindEKS            Kind = "eks"
	KindDynamoDB       Kind = "dynamodb"
	KindELB            Kind = "elb"
	KindASG            Kind = "asg"
	KindSQS            Kind = "sqs"
	KindECR            Kind = "ecr"
	KindKMS            Kind = "kms"
	KindMemoryDB       Kind = "memorydb"
	KindRedshift       Kind = "redshift"
	KindCloudTrail     Kind = "cloudtrail"
	KindCloudWatchLogs Kind = "cloudwatch_logs"
)

var allKinds = []Kind{
	KindEC2, KindEBS, KindVPC, KindSubnet, KindSecurityGroup, KindEIP, KindNATGateway,
	KindS3, KindRDS, KindLambda, KindECS, KindEKS, KindDynamoDB, KindELB, KindASG,
	KindSQS, KindECR, KindKMS, KindMemoryDB, KindRedshift, KindCloudTrail, KindCloudWatchLogs,
}

// AllKinds returns every known kind in declaration order.
func AllKinds() []Kind {
	return slices.Clone(allKinds)
}

// ParseKind converts a service name into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(allKinds, k) {
		return "", &Error{Kind: ErrKindConfiguration, Op: "parse kind", Err: fmt.Errorf("unknown service %q", s)}
	}
	return k, nil
}

// ParseKinds converts a list of service names, failing on the first unknown one.
func ParseKinds(names []string) ([]Kind, error) {
	kinds := make([]Kind, 0, len(names))
	for _, n := range names {
		k, err := ParseKind(n)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func (k Kind) String() string {
	return string(k)
}

// Target is one (region, kind) unit of work.
type Target struct {
	Region string `json:"region"`
	Kind   Kind   `json:"service"`
}

func (t Target) String() string {
	return t.Region + "/" + string(t.Kind)
}

// Less orders targets by region, then kind.
func (t Target) Less(o Target) bool {
	if t.Region != o.Region {
		return t.Region < o.Region
	}
	return t.Kind < o.Kind
}

// Record is a single discovered resource.
// Treat it as immutable once an adapter has yielded it.
type Record struct {
	Kind   Kind              `json:"service"`
	Region string            `json:"region"`
	ID     string            `json:"id"`
	Name   string            `json:"name,omitempty"`
	Status string            `json:"status,omitempty"`
	Labels map[string]string `json:"labels,omitempty"` // tags
	Attrs  map[string]string `json:"attrs,omitempty"`  // kind-specific metadata, absent fields omitted
}

// Key identifies a record inside a snapshot.
type Key struct {
	Region string
	Kind   Kind
	ID     string
}

// Key returns the record identity.
func (r Record) Key() Key {
	return Key{Region: r.Region, Kind: r.Kind, ID: r.ID}
}

// Target returns the target this record belongs to.
func (r Record) Target() Target {
	return Target{Region: r.Region, Kind: r.Kind}
}

// Less orders records by (region, kind, id).
func (r Record) Less(o Record) bool {
	if r.Region != o.Region {
		return r.Region < o.Region
	}
	if r.Kind != o.Kind {
		return r.Kind < o.Kind
	}
	return r.ID < o.ID
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	c := r
	if r.Labels != nil {
		c.Labels = maps.Clone(r.Labels)
	}
	if r.Attrs != nil {
		c.Attrs = maps.Clone(r.Attrs)
	}
	return c
}

// Outcome is the settled result of one target within a scan pass.
// Err is nil on success.
type Outcome struct {
	Target  Target
	Records []Record
	Err     *Error
}

// OK reports whether the target succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Failure is the reportable form of a failed outcome.
type Failure struct {
	Target  Target    `json:"target"`
	Kind    ErrorKind `json:"error"`
	Message string    `json:"message"`
}

// FailureOf converts a failed outcome; ok is false for successes.
func FailureOf(o Outcome) (Failure, bool) {
	if o.Err == nil {
		return Failure{}, false
	}
	return Failure{Target: o.Target, Kind: o.Err.Kind, Message: o.Err.Message()}, true
}
