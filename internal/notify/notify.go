package notify

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/example/cita-scheduler/internal/logsink"
)

// Sender delivers booking confirmations.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SESSender sends through Amazon SES.
type SESSender struct {
	client *sesv2.Client
	from   string
}

func NewSESSender(cfg aws.Config, fromEmail string) *SESSender {
	return &SESSender{client: sesv2.NewFromConfig(cfg), from: fromEmail}
}

func (s *SESSender) Send(ctx context.Context, to, subject, body string) error {
	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		},
	})
	return err
}

// LogSender is the fallback when no email backend is configured: the
// confirmation only lands in the log.
type LogSender struct {
	Log *logsink.Sink
}

func (s LogSender) Send(_ context.Context, to, subject, _ string) error {
	s.Log.Printf("notification for %s: %s", to, subject)
	return nil
}
