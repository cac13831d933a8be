package aws

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"questbot.io/questbot/pkg/errors"
	"questbot.io/questbot/pkg/log"
)

// Clients bundles the aws services the bot talks to. The bucket may be empty when
// archiving is off.
type Clients struct {
	bucketName string
	region     string
	s3Client   *s3.Client
	ssmClient  *ssm.Client
}

func Init(ctx context.Context, region, bucketName string) (*Clients, error) {
	if region == "" {
		return nil, errors.New("aws region not present")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "unable to load SDK config")
	}
	log.Infof("aws clients ready in %v, archive bucket %q", region, bucketName)
	return &Clients{
		bucketName: bucketName,
		region:     region,
		s3Client:   s3.NewFromConfig(cfg),
		ssmClient:  ssm.NewFromConfig(cfg),
	}, nil
}

// GetParameter reads a decrypted SSM parameter.
func (s *Clients) GetParameter(ctx context.Context, paramName string) (string, error) {
	input := &ssm.GetParameterInput{
		Name:           aws.String(paramName),
		WithDecryption: true,
	}
	parameter, err := s.ssmClient.GetParameter(ctx, input)
	if err != nil {
		return "", errors.WrapAndReport(err, "query parameter from ssm")
	}
	if parameter.Parameter == nil || parameter.Parameter.Value == nil {
		return "", errors.Errorf("ssm parameter %v has no value", paramName)
	}
	return *parameter.Parameter.Value, nil
}

func (s *Clients) HasBucket() bool {
	return s.bucketName != ""
}

func (s *Clients) PutObject(ctx context.Context, key, contentType string, body io.Reader) error {
	if !s.HasBucket() {
		return errors.New("no s3 bucket configured")
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Body:        body,
	}
	_, err := s.s3Client.PutObject(ctx, input)
	return errors.WrapAndReport(err, "put object to s3")
}
