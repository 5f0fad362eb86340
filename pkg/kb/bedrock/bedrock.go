// Package bedrock implements kb.KnowledgeBase on Bedrock knowledge bases via
// RetrieveAndGenerate.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	smithydoc "github.com/aws/smithy-go/document"

	"github.com/paper-pigeon/backend/internal/util"
	"github.com/paper-pigeon/backend/pkg/common"
	"github.com/paper-pigeon/backend/pkg/kb"
	"github.com/paper-pigeon/backend/pkg/logger"
	"github.com/paper-pigeon/backend/pkg/telemetry"
)

const (
	DefaultModel           = "meta.llama3-1-70b-instruct-v1:0"
	DefaultNumberOfResults = 25
	DefaultTimeout         = 60 * time.Second

	documentIDKey   = "document_id"
	dataSourceIDKey = "x-amz-bedrock-kb-data-source-id"
)

// API is the subset of *bedrockagentruntime.Client used here.
type API interface {
	RetrieveAndGenerate(ctx context.Context, params *bedrockagentruntime.RetrieveAndGenerateInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveAndGenerateOutput, error)
}

type Config struct {
	Region string

	ChatKnowledgeBaseID string
	ChatModelARN        string
	// DataSourceID optionally restricts chat retrieval to one data source.
	DataSourceID string

	RecommendKnowledgeBaseID string
	RecommendModelARN        string
	NumberOfResults          int32

	Timeout time.Duration
}

// ModelARN is the ARN of a foundation model in region.
func ModelARN(region, model string) string {
	return fmt.Sprintf("arn:aws:bedrock:%s::foundation-model/%s", region, model)
}

// ConfigFromEnv reads the knowledge base settings, accepting the VITE_
// prefixed names used by the front end deployment.
func ConfigFromEnv(region string) Config {
	return Config{
		Region:                   region,
		ChatKnowledgeBaseID:      util.FirstEnv("BEDROCK_KNOWLEDGE_BASE_ID", "VITE_BEDROCK_KNOWLEDGE_BASE_ID"),
		ChatModelARN:             util.GetEnv("BEDROCK_MODEL_ARN"),
		DataSourceID:             util.FirstEnv("BEDROCK_DATA_SOURCE_ID", "VITE_BEDROCK_DATA_SOURCE_ID"),
		RecommendKnowledgeBaseID: util.FirstEnv("BEDROCK_KNOWLEDGE_BASE_ID_2", "VITE_BEDROCK_KNOWLEDGE_BASE_ID_2"),
		RecommendModelARN:        util.GetEnv("BEDROCK_RECOMMEND_MODEL_ARN"),
		NumberOfResults:          int32(util.GetEnvNumeric("BEDROCK_RECOMMEND_RESULTS", DefaultNumberOfResults)),
		Timeout:                  util.GetEnvDuration("KB_TIMEOUT", DefaultTimeout),
	}
}

func (c Config) withDefaults() Config {
	if c.ChatModelARN == "" {
		c.ChatModelARN = ModelARN(c.Region, DefaultModel)
	}
	if c.RecommendModelARN == "" {
		c.RecommendModelARN = ModelARN(c.Region, DefaultModel)
	}
	if c.NumberOfResults <= 0 {
		c.NumberOfResults = DefaultNumberOfResults
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

type Client struct {
	api API
	cfg Config
}

var _ kb.KnowledgeBase = (*Client)(nil)

func New(api API, cfg Config) *Client {
	return &Client{api: api, cfg: cfg.withDefaults()}
}

func NewFromConfig(awsCfg aws.Config, cfg Config) *Client {
	if cfg.Region == "" {
		cfg.Region = awsCfg.Region
	}
	return New(bedrockagentruntime.NewFromConfig(awsCfg), cfg)
}

func (c *Client) Chat(ctx context.Context, query, documentID string) (*kb.ChatResult, error) {
	if c.cfg.ChatKnowledgeBaseID == "" {
		return nil, c.fail("chat", errors.New("knowledge base id is not configured"))
	}

	filter := types.RetrievalFilter(equals(documentIDKey, documentID))
	if c.cfg.DataSourceID != "" {
		filter = &types.RetrievalFilterMemberAndAll{Value: []types.RetrievalFilter{
			filter,
			equals(dataSourceIDKey, c.cfg.DataSourceID),
		}}
	}

	out, err := c.retrieveAndGenerate(ctx, "chat", query, &types.KnowledgeBaseRetrieveAndGenerateConfiguration{
		KnowledgeBaseId: aws.String(c.cfg.ChatKnowledgeBaseID),
		ModelArn:        aws.String(c.cfg.ChatModelARN),
		RetrievalConfiguration: &types.KnowledgeBaseRetrievalConfiguration{
			VectorSearchConfiguration: &types.KnowledgeBaseVectorSearchConfiguration{
				Filter: filter,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	if out.Output == nil || out.Output.Text == nil {
		return nil, c.fail("chat", errors.New("knowledge base returned no answer"))
	}

	return &kb.ChatResult{
		Answer:    aws.ToString(out.Output.Text),
		Citations: citations(out.Citations),
	}, nil
}

func (c *Client) Recommend(ctx context.Context, resumeText string) ([]json.RawMessage, error) {
	if c.cfg.RecommendKnowledgeBaseID == "" {
		return nil, c.fail("recommend", errors.New("knowledge base id is not configured"))
	}

	out, err := c.retrieveAndGenerate(ctx, "recommend", resumeText, &types.KnowledgeBaseRetrieveAndGenerateConfiguration{
		KnowledgeBaseId: aws.String(c.cfg.RecommendKnowledgeBaseID),
		ModelArn:        aws.String(c.cfg.RecommendModelARN),
		RetrievalConfiguration: &types.KnowledgeBaseRetrievalConfiguration{
			VectorSearchConfiguration: &types.KnowledgeBaseVectorSearchConfiguration{
				NumberOfResults:    aws.Int32(c.cfg.NumberOfResults),
				OverrideSearchType: types.SearchTypeHybrid,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	if out.Output == nil || out.Output.Text == nil {
		return nil, c.fail("recommend", errors.New("knowledge base returned no output"))
	}

	recs, err := kb.ParseRecommendations(aws.ToString(out.Output.Text))
	if err != nil {
		return nil, c.fail("recommend", fmt.Errorf("unparseable recommendations: %w", err))
	}
	return recs, nil
}

func (c *Client) retrieveAndGenerate(
	ctx context.Context,
	op string,
	text string,
	kbCfg *types.KnowledgeBaseRetrieveAndGenerateConfiguration,
) (*bedrockagentruntime.RetrieveAndGenerateOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	out, err := c.api.RetrieveAndGenerate(ctx, &bedrockagentruntime.RetrieveAndGenerateInput{
		Input: &types.RetrieveAndGenerateInput{Text: aws.String(text)},
		RetrieveAndGenerateConfiguration: &types.RetrieveAndGenerateConfiguration{
			Type:                       types.RetrieveAndGenerateTypeKnowledgeBase,
			KnowledgeBaseConfiguration: kbCfg,
		},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = errors.Join(err, ctxErr)
		}
		return nil, c.fail(op, err)
	}

	logger.Debug("[Bedrock] RetrieveAndGenerate", "op", op, "kb", aws.ToString(kbCfg.KnowledgeBaseId), "citations", len(out.Citations), "duration", time.Since(start))
	return out, nil
}

func (c *Client) fail(op string, err error) error {
	telemetry.UpstreamErrors.WithLabelValues("bedrock", op).Inc()
	logger.Error("[Bedrock] Knowledge base call failed", "op", op, "err", err)
	return common.E(common.KindUpstream, "bedrock "+op, err)
}

func equals(key, value string) *types.RetrievalFilterMemberEquals {
	return &types.RetrievalFilterMemberEquals{Value: types.FilterAttribute{
		Key:   aws.String(key),
		Value: document.NewLazyDocument(value),
	}}
}

func citations(in []types.Citation) []kb.Citation {
	out := make([]kb.Citation, 0, len(in))
	for _, c := range in {
		var cit kb.Citation
		if p := c.GeneratedResponsePart; p != nil && p.TextResponsePart != nil {
			cit.Text = aws.ToString(p.TextResponsePart.Text)
		}

		cit.References = make([]kb.Reference, 0, len(c.RetrievedReferences))
		for _, r := range c.RetrievedReferences {
			var ref kb.Reference
			if r.Content != nil {
				ref.Content = aws.ToString(r.Content.Text)
			}
			if l := r.Location; l != nil && l.S3Location != nil {
				ref.Location = aws.ToString(l.S3Location.Uri)
			}
			ref.Metadata = metadata(r.Metadata)
			cit.References = append(cit.References, ref)
		}
		out = append(out, cit)
	}
	return out
}

func metadata(in map[string]document.Interface) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if v == nil {
			continue
		}
		var val any
		if err := v.UnmarshalSmithyDocument(&val); err != nil {
			logger.Debug("[Bedrock] Skipping citation metadata", "key", k, "err", err)
			continue
		}
		out[k] = plain(val)
	}
	return out
}

// plain replaces smithy document numbers, which decode as strings, with
// int64 or float64 so they serialize as JSON numbers.
func plain(v any) any {
	switch t := v.(type) {
	case smithydoc.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return string(t)
	case map[string]any:
		for k, e := range t {
			t[k] = plain(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = plain(e)
		}
		return t
	default:
		return v
	}
}
