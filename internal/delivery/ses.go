// Copyright (C) 2020  Lukas Dietrich <lukas@lukasdietrich.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package delivery

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SendEmailAPI is the part of the SES v2 client used by the transport.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESOptions configures the SES client. Without static credentials the default credential chain
// of the AWS SDK is used.
type SESOptions struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// SESTransport sends raw messages through AWS SES v2.
type SESTransport struct {
	client SendEmailAPI
}

// NewSESTransport loads the AWS configuration and creates a transport.
func NewSESTransport(ctx context.Context, options SESOptions) (*SESTransport, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(options.Region),
	}

	if options.AccessKeyID != "" && options.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(options.AccessKeyID, options.SecretAccessKey, ""),
		))
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not load aws configuration: %w", err)
	}

	return NewSESTransportWithClient(sesv2.NewFromConfig(awsConfig)), nil
}

// NewSESTransportWithClient creates a transport on top of an existing client.
func NewSESTransportWithClient(client SendEmailAPI) *SESTransport {
	return &SESTransport{client: client}
}

func (t *SESTransport) Send(ctx context.Context, message *Message) error {
	data, err := message.Bytes()
	if err != nil {
		return err
	}

	input := sesv2.SendEmailInput{
		FromEmailAddress: aws.String(message.From.String()),
		Destination: &types.Destination{
			ToAddresses: []string{message.To},
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{
				Data: data,
			},
		},
	}

	if _, err := t.client.SendEmail(ctx, &input); err != nil {
		return fmt.Errorf("ses: %w", err)
	}

	return nil
}

func (t *SESTransport) Close() error {
	return nil
}
