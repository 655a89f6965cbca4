package policyloader

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// RegionLister enumerates the regions enabled for the scanned account,
// consulted only when neither the tenant configuration nor the job names
// any region: an AWS tenant with an empty region set means "scan
// everywhere the account is enabled", not "scan nowhere".
type RegionLister interface {
	ListRegions(ctx context.Context) ([]string, error)
}

// EC2RegionLister enumerates enabled regions via ec2 DescribeRegions using
// the aws.Config it was built with, so opt-in regions the account never
// enabled don't show up in the plan only to fail with CLIENT errors.
type EC2RegionLister struct {
	Client *ec2.Client
}

func NewEC2RegionLister(cfg aws.Config) *EC2RegionLister {
	return &EC2RegionLister{Client: ec2.NewFromConfig(cfg)}
}

func (l *EC2RegionLister) ListRegions(ctx context.Context) ([]string, error) {
	out, err := l.Client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{
		AllRegions: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("describe regions: %w", err)
	}
	regions := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		if r.RegionName != nil {
			regions = append(regions, *r.RegionName)
		}
	}
	return regions, nil
}
