package snssms

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/pkg/errors"
)

type publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Sender delivers SMS through AWS SNS. The subject is ignored.
type Sender struct {
	client publisher
}

// New loads the default AWS credential chain for region. endpoint is optional (LocalStack).
func New(ctx context.Context, region, endpoint string) (*Sender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	client := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &Sender{client: client}, nil
}

func newWithClient(c publisher) *Sender {
	return &Sender{client: c}
}

func (s *Sender) Send(ctx context.Context, phone, _subject, body string) error {
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(body),
	})
	if err != nil {
		return errors.Wrap(err, "sns publish")
	}
	return nil
}
