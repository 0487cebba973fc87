package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
)

// ImageMethod selects the image conversion backend.
type ImageMethod string

const (
	ImageAWSTextract ImageMethod = "AWS_TEXTRACT"
	ImageNone        ImageMethod = "NONE"
)

// NoImageMethodText is returned by the NONE method.
const NoImageMethodText = "No image to text conversion method specified"

// TextractConfig configures the AWS Textract backend.
type TextractConfig struct {
	AccessKey string
	SecretKey string
	Region    string
	// Endpoint overrides the Textract endpoint.
	Endpoint string
}

// detectedLine pairs one recognized text line with its bounding box, so
// downstream consumers keep layout information when no caption exists.
type detectedLine struct {
	Text string             `json:"text"`
	Box  *types.BoundingBox `json:"box,omitempty"`
}

// textractAPI is the Textract surface used, extracted for tests.
type textractAPI interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

// ImageToText converts image bytes to text through a configured backend.
type ImageToText struct {
	method   ImageMethod
	textract *TextractConfig
	client   textractAPI
	logger   *slog.Logger
}

// ImageOptions configure an ImageToText extractor.
type ImageOptions struct {
	Method   ImageMethod
	Textract *TextractConfig
	Logger   *slog.Logger
	// Client substitutes the Textract client, for tests.
	Client textractAPI
}

// NewImageToText creates an image extractor.
func NewImageToText(opts ImageOptions) *ImageToText {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageToText{
		method:   opts.Method,
		textract: opts.Textract,
		client:   opts.Client,
		logger:   logger,
	}
}

// ConvertToText runs the given conversion method over raw image bytes.
// An empty method falls back to the configured one.
func (i *ImageToText) ConvertToText(ctx context.Context, image []byte, method ImageMethod) (string, error) {
	if method == "" {
		method = i.method
	}
	switch method {
	case ImageAWSTextract:
		return i.convertWithTextract(ctx, image)
	default:
		return NoImageMethodText, nil
	}
}

// ConvertBase64ToText decodes base64 image data and converts it.
func (i *ImageToText) ConvertBase64ToText(ctx context.Context, imageBase64 string, method ImageMethod) (string, error) {
	data, err := base64.StdEncoding.DecodeString(imageBase64)
	if err != nil {
		return "", fmt.Errorf("decode base64 image: %w", err)
	}
	return i.ConvertToText(ctx, data, method)
}

func (i *ImageToText) convertWithTextract(ctx context.Context, image []byte) (string, error) {
	client, err := i.textractClient()
	if err != nil {
		return "", err
	}

	out, err := client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: image},
	})
	if err != nil {
		return "", fmt.Errorf("textract detect document text: %w", err)
	}

	var lines []detectedLine
	for _, block := range out.Blocks {
		if block.BlockType != types.BlockTypeLine {
			continue
		}
		line := detectedLine{}
		if block.Text != nil {
			line.Text = *block.Text
		}
		if block.Geometry != nil {
			line.Box = block.Geometry.BoundingBox
		}
		lines = append(lines, line)
	}

	serialized, err := json.Marshal(lines)
	if err != nil {
		return "", fmt.Errorf("serialize textract lines: %w", err)
	}

	i.logger.Info("image text extraction complete", "lines", len(lines))
	return string(serialized), nil
}

func (i *ImageToText) textractClient() (textractAPI, error) {
	if i.client != nil {
		return i.client, nil
	}
	if i.textract == nil || i.textract.AccessKey == "" || i.textract.SecretKey == "" {
		return nil, fmt.Errorf("aws textract: %w", ErrNoBackend)
	}

	region := i.textract.Region
	if region == "" {
		region = "us-east-1"
	}
	cfg := aws.Config{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(i.textract.AccessKey, i.textract.SecretKey, ""),
	}
	i.client = textract.NewFromConfig(cfg, func(o *textract.Options) {
		if i.textract.Endpoint != "" {
			o.BaseEndpoint = aws.String(i.textract.Endpoint)
		}
	})
	return i.client, nil
}
