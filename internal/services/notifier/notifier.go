// Package notifier sends job completion emails via AWS SES.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"

	"payroll-batch-engine/internal/models"
	"payroll-batch-engine/internal/utils"
)

// RecipientResolver maps an uploader id to a notification address. An
// empty result skips the notification.
type RecipientResolver func(uploaderID string) string

// UploaderEmailResolver treats uploader ids that look like email
// addresses as the notification recipient and skips everything else.
func UploaderEmailResolver(uploaderID string) string {
	if strings.Count(uploaderID, "@") == 1 && !strings.HasPrefix(uploaderID, "@") && !strings.HasSuffix(uploaderID, "@") {
		return uploaderID
	}
	return ""
}

// Service sends job lifecycle emails.
type Service struct {
	client    *ses.Client
	fromEmail string
	resolve   RecipientResolver
}

// NewService creates a new SES notifier.
func NewService(ctx context.Context, fromEmail string, resolve RecipientResolver) (*Service, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Service{
		client:    ses.NewFromConfig(cfg),
		fromEmail: fromEmail,
		resolve:   resolve,
	}, nil
}

// NotifyJobFinished emails the uploader a summary of a terminal job.
// Delivery is best effort; unresolvable recipients are skipped silently.
func (s *Service) NotifyJobFinished(ctx context.Context, job *models.Job) error {
	if s.resolve == nil {
		return nil
	}
	to := s.resolve(job.UploaderID)
	if to == "" {
		return nil
	}

	subject := fmt.Sprintf("Payroll batch %s: %s", job.ID, job.Status)
	body := s.buildBody(job)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromEmail),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		utils.GetLogger().Error("Failed to send job notification",
			zap.String("to", to),
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to send email: %w", err)
	}

	utils.GetLogger().Info("Job notification sent",
		zap.String("to", to),
		zap.String("job_id", job.ID),
		zap.Stringp("message_id", result.MessageId),
	)

	return nil
}

// buildBody renders the plain-text job summary.
func (s *Service) buildBody(job *models.Job) string {
	completed := "-"
	if job.CompletedAt != nil {
		completed = job.CompletedAt.Format(time.RFC3339)
	}

	return fmt.Sprintf(
		"Your payroll batch has finished.\n\n"+
			"Job:        %s\n"+
			"Status:     %s\n"+
			"Total rows: %d\n"+
			"Processed:  %d\n"+
			"Failed:     %d\n"+
			"Completed:  %s\n",
		job.ID, job.Status, job.ValidRowCount,
		job.ProcessedRowCount, job.FailedRowCount, completed,
	)
}
