package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"campaign-mailer/internal/dispatch"
)

const (
	StatusSent   = "SENT"
	StatusFailed = "FAILED"
)

// DynamoDB accepts at most 25 items per BatchWriteItem call.
const maxBatchWrite = 25

type Run struct {
	ID       string
	Template string
	Subject  string
}

type Entry struct {
	RunID      string `dynamodbav:"RunId"`
	Seq        int    `dynamodbav:"Seq"`
	Recipient  string `dynamodbav:"Recipient"`
	Status     string `dynamodbav:"Status"`
	MessageID  string `dynamodbav:"MessageId,omitempty"`
	Response   string `dynamodbav:"Response,omitempty"`
	Reason     string `dynamodbav:"Reason,omitempty"`
	Template   string `dynamodbav:"Template"`
	Subject    string `dynamodbav:"Subject"`
	RecordedAt string `dynamodbav:"RecordedAt"`
}

type dynamodbInterface interface {
	BatchWriteItem(context.Context, *dynamodb.BatchWriteItemInput, ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Journal stores one item per recipient outcome, keyed by run id and position.
type Journal struct {
	db        dynamodbInterface
	tableName string
	logger    *slog.Logger
	now       func() time.Time
}

func New(db *dynamodb.Client, tableName string) *Journal {
	return newJournal(db, tableName)
}

func newJournal(db dynamodbInterface, tableName string) *Journal {
	return &Journal{
		db:        db,
		tableName: tableName,
		logger:    slog.With("component", "journal"),
		now:       time.Now,
	}
}

func (j *Journal) Record(ctx context.Context, run Run, outcomes []dispatch.Outcome) error {
	recordedAt := j.now().UTC().Format(time.RFC3339)
	unprocessed := 0

	for start := 0; start < len(outcomes); start += maxBatchWrite {
		end := min(start+maxBatchWrite, len(outcomes))

		writeReqs := make([]types.WriteRequest, 0, end-start)
		for i := start; i < end; i++ {
			item, err := attributevalue.MarshalMap(newEntry(run, i, outcomes[i], recordedAt))
			if err != nil {
				return fmt.Errorf("failed to marshal journal entry: %w", err)
			}
			writeReqs = append(writeReqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		}

		res, err := j.db.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{j.tableName: writeReqs},
		})
		if err != nil {
			return fmt.Errorf("failed to write journal batch: %w", err)
		}

		unprocessed += len(res.UnprocessedItems[j.tableName])
	}

	if unprocessed > 0 {
		return fmt.Errorf("journal left %d of %d entries unprocessed", unprocessed, len(outcomes))
	}

	j.logger.Debug(fmt.Sprintf("recorded %d outcomes", len(outcomes)), "run", run.ID)
	return nil
}

// Load returns the entries of a run ordered by position.
func (j *Journal) Load(ctx context.Context, runID string) ([]Entry, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("RunId").Equal(expression.Value(runID))).
		Build()
	if err != nil {
		return nil, err
	}

	paginator := dynamodb.NewQueryPaginator(j.db, &dynamodb.QueryInput{
		TableName:                 aws.String(j.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	var entries []Entry
	for paginator.HasMorePages() {
		res, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query journal: %w", err)
		}

		var page []Entry
		if err := attributevalue.UnmarshalListOfMaps(res.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal journal entries: %w", err)
		}
		entries = append(entries, page...)
	}

	return entries, nil
}

func newEntry(run Run, seq int, outcome dispatch.Outcome, recordedAt string) Entry {
	status := StatusFailed
	if outcome.Success {
		status = StatusSent
	}

	return Entry{
		RunID:      run.ID,
		Seq:        seq,
		Recipient:  outcome.Recipient,
		Status:     status,
		MessageID:  outcome.MessageID,
		Response:   outcome.Response,
		Reason:     outcome.Reason,
		Template:   run.Template,
		Subject:    run.Subject,
		RecordedAt: recordedAt,
	}
}
