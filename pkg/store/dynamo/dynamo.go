package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/paper-pigeon/backend/pkg/common"
	"github.com/paper-pigeon/backend/pkg/logger"
	"github.com/paper-pigeon/backend/pkg/store"
	"github.com/paper-pigeon/backend/pkg/telemetry"
)

// maxUnprocessedRounds bounds how often keys DynamoDB left unprocessed in a
// BatchGetItem response are sent again within the same logical read.
const maxUnprocessedRounds = 5

// API is the subset of *dynamodb.Client used by the reader.
type API interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
}

// Tables holds the table names of the source collections.
type Tables struct {
	Researchers  string
	PaperEdges   string
	AdvisorEdges string
	Library      string
	Papers       string
	Descriptions string
	Metrics      string
	LabInfo      string
}

// DefaultTables returns the table names the data pipeline writes to.
func DefaultTables() Tables {
	return Tables{
		Researchers:  "researchers",
		PaperEdges:   "paper-edges",
		AdvisorEdges: "advisor_edges",
		Library:      "library",
		Papers:       "papers",
		Descriptions: "descriptions",
		Metrics:      "metrics",
		LabInfo:      "lab-info",
	}
}

func (t Tables) withDefaults() Tables {
	d := DefaultTables()
	if t.Researchers == "" {
		t.Researchers = d.Researchers
	}
	if t.PaperEdges == "" {
		t.PaperEdges = d.PaperEdges
	}
	if t.AdvisorEdges == "" {
		t.AdvisorEdges = d.AdvisorEdges
	}
	if t.Library == "" {
		t.Library = d.Library
	}
	if t.Papers == "" {
		t.Papers = d.Papers
	}
	if t.Descriptions == "" {
		t.Descriptions = d.Descriptions
	}
	if t.Metrics == "" {
		t.Metrics = d.Metrics
	}
	if t.LabInfo == "" {
		t.LabInfo = d.LabInfo
	}
	return t
}

// Reader implements store.Reader on DynamoDB.
type Reader struct {
	client API
	tables Tables
}

var _ store.Reader = (*Reader)(nil)

// NewReader creates a DynamoDB backed reader. Empty table names fall back to
// DefaultTables.
func NewReader(client API, tables Tables) *Reader {
	return &Reader{
		client: client,
		tables: tables.withDefaults(),
	}
}

// NewClient builds a DynamoDB client from an AWS config. A non-empty endpoint
// overrides the service endpoint (local DynamoDB, LocalStack).
func NewClient(cfg aws.Config, endpoint string) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

func (r *Reader) FetchResearchers(ctx context.Context) ([]common.Researcher, error) {
	rows, err := scanAll[ddbResearcher](ctx, r.client, &dynamodb.ScanInput{
		TableName: aws.String(r.tables.Researchers),
	})
	if err != nil {
		return nil, err
	}

	out := make([]common.Researcher, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toCommon())
	}
	logger.Debug("[Store] Fetched researchers", "count", len(out))
	return out, nil
}

func (r *Reader) FetchPaperEdges(ctx context.Context) ([]common.PaperEdge, error) {
	rows, err := scanAll[ddbPaperEdge](ctx, r.client, &dynamodb.ScanInput{
		TableName: aws.String(r.tables.PaperEdges),
	})
	if err != nil {
		return nil, err
	}

	out := make([]common.PaperEdge, 0, len(rows))
	for _, row := range rows {
		out = append(out, common.PaperEdge{
			ResearcherOneID: row.ResearcherOneID,
			ResearcherTwoID: row.ResearcherTwoID,
		})
	}
	logger.Debug("[Store] Fetched paper edges", "count", len(out))
	return out, nil
}

func (r *Reader) FetchAdvisorEdges(ctx context.Context) ([]common.AdvisorEdge, error) {
	rows, err := scanAll[ddbAdvisorEdge](ctx, r.client, &dynamodb.ScanInput{
		TableName: aws.String(r.tables.AdvisorEdges),
	})
	if err != nil {
		return nil, err
	}

	out := make([]common.AdvisorEdge, 0, len(rows))
	for _, row := range rows {
		out = append(out, common.AdvisorEdge{
			AdviseeID: row.AdviseeID,
			AdvisorID: row.AdvisorID,
		})
	}
	logger.Debug("[Store] Fetched advisor edges", "count", len(out))
	return out, nil
}

func (r *Reader) FetchLibraryEntries(ctx context.Context, researcherID string) ([]common.LibraryEntry, error) {
	rows, err := scanAll[ddbLibraryEntry](ctx, r.client, &dynamodb.ScanInput{
		TableName:        aws.String(r.tables.Library),
		FilterExpression: aws.String("researcher_id = :rid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rid": &types.AttributeValueMemberS{Value: researcherID},
		},
	})
	if err != nil {
		return nil, err
	}

	out := make([]common.LibraryEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, common.LibraryEntry{
			ResearcherID: row.ResearcherID,
			DocumentID:   row.DocumentID,
		})
	}
	return out, nil
}

func (r *Reader) FetchPapers(ctx context.Context, documentIDs []string) ([]common.Paper, error) {
	rows, err := batchGet[ddbPaper](ctx, r.client, r.tables.Papers, "document_id", documentIDs)
	if err != nil {
		return nil, err
	}

	out := make([]common.Paper, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toCommon())
	}
	return out, nil
}

func (r *Reader) FetchDescriptions(ctx context.Context, researcherIDs []string) ([]common.Description, error) {
	rows, err := batchGet[ddbDescription](ctx, r.client, r.tables.Descriptions, "researcher_id", researcherIDs)
	if err != nil {
		return nil, err
	}

	out := make([]common.Description, 0, len(rows))
	for _, row := range rows {
		out = append(out, common.Description{
			ResearcherID: row.ResearcherID,
			About:        row.About.ptr(),
		})
	}
	logger.Debug("[Store] Fetched descriptions", "count", len(out))
	return out, nil
}

func (r *Reader) FetchMetrics(ctx context.Context, researcherIDs []string) ([]common.Metric, error) {
	rows, err := batchGet[ddbMetric](ctx, r.client, r.tables.Metrics, "researcher_id", researcherIDs)
	if err != nil {
		return nil, err
	}

	out := make([]common.Metric, 0, len(rows))
	for _, row := range rows {
		out = append(out, common.Metric{
			ResearcherID: row.ResearcherID,
			Influence:    row.Influence.float(),
		})
	}
	logger.Debug("[Store] Fetched metrics", "count", len(out))
	return out, nil
}

func (r *Reader) FetchLabInfo(ctx context.Context, labIDs []string) ([]common.LabInfo, error) {
	rows, err := batchGet[map[string]any](ctx, r.client, r.tables.LabInfo, "lab_id", labIDs)
	if err != nil {
		return nil, err
	}

	out := make([]common.LabInfo, 0, len(rows))
	for _, row := range rows {
		id, _ := row["lab_id"].(string)
		out = append(out, common.LabInfo{LabID: id, Attrs: row})
	}
	return out, nil
}

// scanAll reads every page of a scan and decodes each item into T.
func scanAll[T any](ctx context.Context, client API, input *dynamodb.ScanInput) ([]T, error) {
	table := aws.ToString(input.TableName)
	paginator := dynamodb.NewScanPaginator(client, input)

	out := make([]T, 0)
	for paginator.HasMorePages() {
		telemetry.StoreRequests.WithLabelValues(table, "scan").Inc()
		page, err := paginator.NextPage(ctx)
		if err != nil {
			telemetry.StoreErrors.WithLabelValues(table, "scan").Inc()
			return nil, common.E(common.KindStoreUnavailable, "scan "+table, err)
		}

		out = append(out, decodeItems[T](table, page.Items)...)
	}

	return out, nil
}

// decodeItems decodes each item into T. An item that cannot be decoded is
// skipped with a warning so one bad record does not fail the read.
func decodeItems[T any](table string, items []map[string]types.AttributeValue) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		var v T
		if err := attributevalue.UnmarshalMap(item, &v); err != nil {
			telemetry.StoreErrors.WithLabelValues(table, "decode").Inc()
			logger.Warn("[Store] Skipping undecodable record", "table", table, "err", err)
			continue
		}
		out = append(out, v)
	}
	return out
}

// batchGet looks up keys in chunks of store.MaxBatchKeys. Keys left unprocessed
// by DynamoDB are requested again, up to maxUnprocessedRounds times per chunk.
func batchGet[T any](ctx context.Context, client API, table, keyName string, keys []string) ([]T, error) {
	return store.BatchGet(ctx, keys, func(ctx context.Context, chunk []string) ([]T, error) {
		reqKeys := make([]map[string]types.AttributeValue, 0, len(chunk))
		for _, k := range chunk {
			reqKeys = append(reqKeys, map[string]types.AttributeValue{
				keyName: &types.AttributeValueMemberS{Value: k},
			})
		}

		request := map[string]types.KeysAndAttributes{
			table: {Keys: reqKeys},
		}

		out := make([]T, 0, len(chunk))
		for round := 0; len(request) > 0; round++ {
			if round >= maxUnprocessedRounds {
				telemetry.StoreErrors.WithLabelValues(table, "batch_get").Inc()
				return nil, common.E(
					common.KindStoreUnavailable,
					"batch get "+table,
					fmt.Errorf("%d keys still unprocessed after %d rounds", len(request[table].Keys), round),
				)
			}

			telemetry.StoreRequests.WithLabelValues(table, "batch_get").Inc()
			resp, err := client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
			if err != nil {
				telemetry.StoreErrors.WithLabelValues(table, "batch_get").Inc()
				return nil, common.E(common.KindStoreUnavailable, "batch get "+table, err)
			}

			out = append(out, decodeItems[T](table, resp.Responses[table])...)

			request = nil
			if pending, ok := resp.UnprocessedKeys[table]; ok && len(pending.Keys) > 0 {
				request = map[string]types.KeysAndAttributes{table: pending}
			}
		}

		return out, nil
	})
}
