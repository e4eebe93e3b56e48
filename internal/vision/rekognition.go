package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"clipwise/internal/awsutil"
	"clipwise/internal/config"
	"clipwise/internal/fileutil"
	"clipwise/internal/logging"
	"clipwise/internal/services"
)

const (
	handleSeparator = "+"
	resultsPageSize = 1000
)

// RekognitionAPI is the subset of the Rekognition client used by the backend.
type RekognitionAPI interface {
	StartLabelDetection(ctx context.Context, params *rekognition.StartLabelDetectionInput, optFns ...func(*rekognition.Options)) (*rekognition.StartLabelDetectionOutput, error)
	GetLabelDetection(ctx context.Context, params *rekognition.GetLabelDetectionInput, optFns ...func(*rekognition.Options)) (*rekognition.GetLabelDetectionOutput, error)
	StartContentModeration(ctx context.Context, params *rekognition.StartContentModerationInput, optFns ...func(*rekognition.Options)) (*rekognition.StartContentModerationOutput, error)
	GetContentModeration(ctx context.Context, params *rekognition.GetContentModerationInput, optFns ...func(*rekognition.Options)) (*rekognition.GetContentModerationOutput, error)
}

// Rekognition implements Service with Amazon Rekognition Video. When
// moderation is enabled each handle pairs a label job with a content
// moderation job as "labelJobId+moderationJobId".
type Rekognition struct {
	client        RekognitionAPI
	minConfidence float32
	moderation    bool
	logger        *slog.Logger
}

// NewRekognitionFromConfig builds the backend using the default AWS
// credential chain.
func NewRekognitionFromConfig(ctx context.Context, cfg config.Vision, logger *slog.Logger) (*Rekognition, error) {
	awsCfg, err := awsutil.LoadConfig(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}
	return NewRekognition(rekognition.NewFromConfig(awsCfg), cfg.MinConfidence, cfg.Moderation, logger), nil
}

// NewRekognition wraps an existing client.
func NewRekognition(client RekognitionAPI, minConfidence float64, moderation bool, logger *slog.Logger) *Rekognition {
	return &Rekognition{
		client:        client,
		minConfidence: float32(minConfidence),
		moderation:    moderation,
		logger:        logging.NewComponentLogger(logger, "vision.rekognition"),
	}
}

func (r *Rekognition) Name() string { return "rekognition" }

// StartJob starts label detection and, when enabled, content moderation.
// Client request tokens derive from the object key so a retried start returns
// the job already running.
func (r *Rekognition) StartJob(ctx context.Context, ref ObjectRef) (string, error) {
	if ref.Bucket == "" || ref.Key == "" {
		return "", services.Wrap(services.ErrDispatch, "vision", "start job", "Rekognition requires an S3 object", nil)
	}
	video := &types.Video{S3Object: &types.S3Object{Bucket: aws.String(ref.Bucket), Name: aws.String(ref.Key)}}
	token := fileutil.SHA256Hex([]byte(ref.Bucket + "/" + ref.Key))[:32]

	labelOut, err := r.client.StartLabelDetection(ctx, &rekognition.StartLabelDetectionInput{
		Video:              video,
		MinConfidence:      aws.Float32(r.minConfidence),
		ClientRequestToken: aws.String("l" + token),
	})
	if err != nil {
		return "", classifyAWS(err, "start label detection", services.ErrDispatch)
	}
	handle := aws.ToString(labelOut.JobId)
	if !r.moderation {
		return handle, nil
	}
	modOut, err := r.client.StartContentModeration(ctx, &rekognition.StartContentModerationInput{
		Video:              video,
		MinConfidence:      aws.Float32(r.minConfidence),
		ClientRequestToken: aws.String("m" + token),
	})
	if err != nil {
		return "", classifyAWS(err, "start content moderation", services.ErrDispatch)
	}
	return handle + handleSeparator + aws.ToString(modOut.JobId), nil
}

func splitHandle(handle string) (string, string) {
	label, moderation, _ := strings.Cut(handle, handleSeparator)
	return label, moderation
}

// GetStatus combines the label and moderation job states. Either job failing
// fails the handle; both must succeed for it to complete.
func (r *Rekognition) GetStatus(ctx context.Context, handle string) (Status, error) {
	labelID, modID := splitHandle(handle)
	labelOut, err := r.client.GetLabelDetection(ctx, &rekognition.GetLabelDetectionInput{
		JobId:      aws.String(labelID),
		MaxResults: aws.Int32(1),
	})
	if err != nil {
		return Status{}, classifyAWS(err, "get label detection", services.ErrPermanentInput)
	}
	state := mapJobStatus(labelOut.JobStatus)
	message := aws.ToString(labelOut.StatusMessage)
	if modID == "" || state == StateFailed {
		return Status{State: state, Message: message}, nil
	}
	modOut, err := r.client.GetContentModeration(ctx, &rekognition.GetContentModerationInput{
		JobId:      aws.String(modID),
		MaxResults: aws.Int32(1),
	})
	if err != nil {
		return Status{}, classifyAWS(err, "get content moderation", services.ErrPermanentInput)
	}
	switch modState := mapJobStatus(modOut.JobStatus); {
	case modState == StateFailed:
		return Status{State: StateFailed, Message: aws.ToString(modOut.StatusMessage)}, nil
	case modState == StateInProgress:
		return Status{State: StateInProgress, Message: message}, nil
	}
	return Status{State: state, Message: message}, nil
}

// GetResults pages through every label and moderation detection.
func (r *Rekognition) GetResults(ctx context.Context, handle string) (*Results, error) {
	labelID, modID := splitHandle(handle)
	results := &Results{}
	var token *string
	for {
		out, err := r.client.GetLabelDetection(ctx, &rekognition.GetLabelDetectionInput{
			JobId:      aws.String(labelID),
			MaxResults: aws.Int32(resultsPageSize),
			NextToken:  token,
			SortBy:     types.LabelDetectionSortByTimestamp,
		})
		if err != nil {
			return nil, classifyAWS(err, "get label detection", services.ErrPermanentInput)
		}
		if mapJobStatus(out.JobStatus) != StateCompleted {
			return nil, services.Wrap(services.ErrPermanentInput, "vision", "get results",
				fmt.Sprintf("Label job is %s", out.JobStatus), nil)
		}
		if out.VideoMetadata != nil && results.DurationMS == 0 {
			results.DurationMS = aws.ToInt64(out.VideoMetadata.DurationMillis)
		}
		for _, detection := range out.Labels {
			if detection.Label == nil {
				continue
			}
			parents := make([]string, 0, len(detection.Label.Parents))
			for _, parent := range detection.Label.Parents {
				parents = append(parents, aws.ToString(parent.Name))
			}
			results.Labels = append(results.Labels, LabelDetection{
				Name:        aws.ToString(detection.Label.Name),
				Confidence:  float64(aws.ToFloat32(detection.Label.Confidence)),
				TimestampMS: detection.Timestamp,
				Parents:     parents,
			})
		}
		if token = out.NextToken; token == nil || *token == "" {
			break
		}
	}
	if modID == "" {
		return results, nil
	}
	token = nil
	for {
		out, err := r.client.GetContentModeration(ctx, &rekognition.GetContentModerationInput{
			JobId:      aws.String(modID),
			MaxResults: aws.Int32(resultsPageSize),
			NextToken:  token,
			SortBy:     types.ContentModerationSortByTimestamp,
		})
		if err != nil {
			return nil, classifyAWS(err, "get content moderation", services.ErrPermanentInput)
		}
		for _, detection := range out.ModerationLabels {
			if detection.ModerationLabel == nil {
				continue
			}
			results.Moderation = append(results.Moderation, ModerationDetection{
				Name:        aws.ToString(detection.ModerationLabel.Name),
				ParentName:  aws.ToString(detection.ModerationLabel.ParentName),
				Confidence:  float64(aws.ToFloat32(detection.ModerationLabel.Confidence)),
				TimestampMS: detection.Timestamp,
			})
		}
		if token = out.NextToken; token == nil || *token == "" {
			break
		}
	}
	return results, nil
}

func mapJobStatus(status types.VideoJobStatus) State {
	switch status {
	case types.VideoJobStatusSucceeded:
		return StateCompleted
	case types.VideoJobStatusFailed:
		return StateFailed
	default:
		return StateInProgress
	}
}

func classifyAWS(err error, operation string, rejected error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if awsutil.IsTransient(err) {
		return services.Wrap(services.ErrTransientIO, "vision", operation, "Rekognition temporarily unavailable", err)
	}
	code := awsutil.ErrorCode(err)
	return services.Wrap(rejected, "vision", operation, "Rekognition rejected request "+code, err)
}
