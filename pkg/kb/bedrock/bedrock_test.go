package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/paper-pigeon/backend/pkg/common"
)

type fakeAPI struct {
	inputs []*bedrockagentruntime.RetrieveAndGenerateInput
	out    *bedrockagentruntime.RetrieveAndGenerateOutput
	err    error
	block  bool
}

func (f *fakeAPI) RetrieveAndGenerate(ctx context.Context, in *bedrockagentruntime.RetrieveAndGenerateInput, _ ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveAndGenerateOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.out, f.err
}

func testConfig() Config {
	return Config{
		Region:                   "us-east-1",
		ChatKnowledgeBaseID:      "KB1",
		RecommendKnowledgeBaseID: "KB2",
	}
}

func output(text string) *bedrockagentruntime.RetrieveAndGenerateOutput {
	return &bedrockagentruntime.RetrieveAndGenerateOutput{Output: &types.RetrieveAndGenerateOutput{Text: aws.String(text)}}
}

func TestChat_RequestShape(t *testing.T) {
	api := &fakeAPI{out: output("It studies caching.")}
	api.out.Citations = []types.Citation{{
		GeneratedResponsePart: &types.GeneratedResponsePart{TextResponsePart: &types.TextResponsePart{Text: aws.String("It studies caching.")}},
		RetrievedReferences: []types.RetrievedReference{{
			Content:  &types.RetrievalResultContent{Text: aws.String("We present a cache...")},
			Location: &types.RetrievalResultLocation{S3Location: &types.RetrievalResultS3Location{Uri: aws.String("s3://papers/sampl/p1.pdf")}},
		}},
	}}
	c := New(api, testConfig())

	res, err := c.Chat(context.Background(), "What is this about?", "p1")
	require.NoError(t, err)
	require.Equal(t, "It studies caching.", res.Answer)
	require.Len(t, res.Citations, 1)
	require.Equal(t, "It studies caching.", res.Citations[0].Text)
	require.Equal(t, "We present a cache...", res.Citations[0].References[0].Content)
	require.Equal(t, "s3://papers/sampl/p1.pdf", res.Citations[0].References[0].Location)

	require.Len(t, api.inputs, 1)
	in := api.inputs[0]
	require.Equal(t, "What is this about?", aws.ToString(in.Input.Text))
	cfg := in.RetrieveAndGenerateConfiguration
	require.Equal(t, types.RetrieveAndGenerateTypeKnowledgeBase, cfg.Type)
	require.Equal(t, "KB1", aws.ToString(cfg.KnowledgeBaseConfiguration.KnowledgeBaseId))
	require.Equal(t, "arn:aws:bedrock:us-east-1::foundation-model/meta.llama3-1-70b-instruct-v1:0", aws.ToString(cfg.KnowledgeBaseConfiguration.ModelArn))

	eq, ok := cfg.KnowledgeBaseConfiguration.RetrievalConfiguration.VectorSearchConfiguration.Filter.(*types.RetrievalFilterMemberEquals)
	require.True(t, ok)
	require.Equal(t, "document_id", aws.ToString(eq.Value.Key))
	raw, err := eq.Value.Value.MarshalSmithyDocument()
	require.NoError(t, err)
	require.JSONEq(t, `"p1"`, string(raw))
}

func TestChat_DataSourceNarrowsFilter(t *testing.T) {
	api := &fakeAPI{out: output("ok")}
	cfg := testConfig()
	cfg.DataSourceID = "DS1"
	c := New(api, cfg)

	_, err := c.Chat(context.Background(), "q", "p1")
	require.NoError(t, err)

	filter := api.inputs[0].RetrieveAndGenerateConfiguration.KnowledgeBaseConfiguration.RetrievalConfiguration.VectorSearchConfiguration.Filter
	and, ok := filter.(*types.RetrievalFilterMemberAndAll)
	require.True(t, ok)
	require.Len(t, and.Value, 2)
	ds := and.Value[1].(*types.RetrievalFilterMemberEquals)
	require.Equal(t, "x-amz-bedrock-kb-data-source-id", aws.ToString(ds.Value.Key))
}

func TestChat_MissingOutputIsUpstreamError(t *testing.T) {
	c := New(&fakeAPI{out: &bedrockagentruntime.RetrieveAndGenerateOutput{}}, testConfig())

	_, err := c.Chat(context.Background(), "q", "p1")
	require.ErrorIs(t, err, common.ErrUpstream)
}

func TestChat_NotConfigured(t *testing.T) {
	api := &fakeAPI{out: output("ok")}
	c := New(api, Config{Region: "us-east-1"})

	_, err := c.Chat(context.Background(), "q", "p1")
	require.ErrorIs(t, err, common.ErrUpstream)
	require.Empty(t, api.inputs)
}

func TestRecommend_RequestShape(t *testing.T) {
	api := &fakeAPI{out: output(`{"recommendations":[{"name":"Ada"},{"name":"Grace"}]}`)}
	c := New(api, testConfig())

	recs, err := c.Recommend(context.Background(), "I like compilers")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.JSONEq(t, `{"name":"Ada"}`, string(recs[0]))

	kbCfg := api.inputs[0].RetrieveAndGenerateConfiguration.KnowledgeBaseConfiguration
	require.Equal(t, "KB2", aws.ToString(kbCfg.KnowledgeBaseId))
	require.Equal(t, "arn:aws:bedrock:us-east-1::foundation-model/meta.llama3-1-70b-instruct-v1:0", aws.ToString(kbCfg.ModelArn))
	vs := kbCfg.RetrievalConfiguration.VectorSearchConfiguration
	require.Equal(t, int32(25), aws.ToInt32(vs.NumberOfResults))
	require.Equal(t, types.SearchTypeHybrid, vs.OverrideSearchType)
	require.Nil(t, vs.Filter)
}

func TestRecommend_MalformedOutput(t *testing.T) {
	c := New(&fakeAPI{out: output(`{"recommendations":"nobody"}`)}, testConfig())

	_, err := c.Recommend(context.Background(), "resume")
	require.ErrorIs(t, err, common.ErrUpstream)
	require.Equal(t, common.KindUpstream, common.KindOf(err))
}

func TestUpstreamFailures(t *testing.T) {
	boom := errors.New("AccessDeniedException")
	c := New(&fakeAPI{err: boom}, testConfig())

	_, err := c.Chat(context.Background(), "q", "p1")
	require.ErrorIs(t, err, common.ErrUpstream)
	require.ErrorIs(t, err, boom)

	_, err = c.Recommend(context.Background(), "resume")
	require.ErrorIs(t, err, boom)
}

func TestTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 10 * time.Millisecond
	c := New(&fakeAPI{block: true}, cfg)

	_, err := c.Chat(context.Background(), "q", "p1")
	require.ErrorIs(t, err, common.ErrUpstream)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

const citedResponse = `{
  "sessionId": "s1",
  "output": {"text": "It studies caching."},
  "citations": [{
    "generatedResponsePart": {"textResponsePart": {"text": "It studies caching."}},
    "retrievedReferences": [{
      "content": {"text": "We present a cache..."},
      "location": {"type": "S3", "s3Location": {"uri": "s3://papers/sampl/p1.pdf"}},
      "metadata": {"document_id": "p1", "year": 2021, "score": 0.5, "authors": ["Ada", "Grace"]}
    }]
  }]
}`

// sdkClient points a real Bedrock runtime client at srv so responses go
// through the SDK's deserializers.
func sdkClient(srv *httptest.Server) *bedrockagentruntime.Client {
	return bedrockagentruntime.New(bedrockagentruntime.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		Credentials:  aws.AnonymousCredentials{},
		HTTPClient:   srv.Client(),
	})
}

func TestChat_SDKRoundTrip(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(citedResponse))
	}))
	defer srv.Close()

	c := New(sdkClient(srv), testConfig())
	res, err := c.Chat(context.Background(), "What is this about?", "p1")
	require.NoError(t, err)
	require.Equal(t, "It studies caching.", res.Answer)

	filter := gjson.GetBytes(body, "retrieveAndGenerateConfiguration.knowledgeBaseConfiguration.retrievalConfiguration.vectorSearchConfiguration.filter.equals")
	require.JSONEq(t, `{"key":"document_id","value":"p1"}`, filter.Raw)

	require.Len(t, res.Citations, 1)
	ref := res.Citations[0].References[0]
	require.Equal(t, "s3://papers/sampl/p1.pdf", ref.Location)
	require.Equal(t, "p1", ref.Metadata["document_id"])
	require.Equal(t, int64(2021), ref.Metadata["year"])
	require.Equal(t, 0.5, ref.Metadata["score"])
	require.Equal(t, []any{"Ada", "Grace"}, ref.Metadata["authors"])

	out, err := json.Marshal(ref.Metadata)
	require.NoError(t, err)
	require.JSONEq(t, `{"document_id":"p1","year":2021,"score":0.5,"authors":["Ada","Grace"]}`, string(out))
}

func TestMetadata_Empty(t *testing.T) {
	require.Nil(t, metadata(nil))
	require.Nil(t, metadata(map[string]document.Interface{}))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Region: "eu-west-1"}.withDefaults()
	require.Equal(t, ModelARN("eu-west-1", DefaultModel), cfg.ChatModelARN)
	require.Equal(t, int32(DefaultNumberOfResults), cfg.NumberOfResults)
	require.Equal(t, DefaultTimeout, cfg.Timeout)
}
