package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// EmailService notifies the research team via Amazon SES. When no sender
// address is configured it runs disabled and every send is a logged no-op,
// which keeps local development free of AWS credentials.
type EmailService struct {
	client          *sesv2.Client
	fromEmail       string
	fromName        string
	researcherEmail string
	enabled         bool
}

// NewEmailService creates a new email service
func NewEmailService(awsRegion, fromEmail, fromName, researcherEmail string) (*EmailService, error) {
	if fromEmail == "" || researcherEmail == "" {
		log.Println("Email service disabled: SES_FROM_EMAIL or RESEARCHER_EMAIL not configured")
		return &EmailService{enabled: false}, nil
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(awsRegion),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sesv2.NewFromConfig(cfg)
	log.Printf("Email service enabled: from=%s, region=%s", fromEmail, awsRegion)

	return &EmailService{
		client:          client,
		fromEmail:       fromEmail,
		fromName:        fromName,
		researcherEmail: researcherEmail,
		enabled:         true,
	}, nil
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.enabled
}

// NotifyStudyCompleted tells the research team a participant has finished
// every batch of the study.
func (s *EmailService) NotifyStudyCompleted(ctx context.Context, participantID string) error {
	if !s.enabled {
		log.Printf("Skipping email send (service disabled): completion notice for %s", participantID)
		return nil
	}

	now := time.Now().UTC().Format(time.RFC1123)
	subject := fmt.Sprintf("Study completed: participant %s", participantID)
	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body>
	<p>Participant <strong>%s</strong> completed all assigned batches at %s.</p>
	<p>The full response record is available in the participants collection and through the export tool.</p>
</body>
</html>
`, participantID, now)

	textBody := fmt.Sprintf(`Participant %s completed all assigned batches at %s.

The full response record is available in the participants collection and through the export tool.
`, participantID, now)

	return s.sendEmail(ctx, s.researcherEmail, subject, htmlBody, textBody)
}

// sendEmail sends an email using Amazon SES
func (s *EmailService) sendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", toEmail, err)
	}

	log.Printf("Email sent to %s (message ID: %s)", toEmail, aws.ToString(result.MessageId))
	return nil
}
