package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/config"
	"github.com/phrazzld/techtree-api/internal/platform/logger"
	"github.com/phrazzld/techtree-api/internal/store"
	"github.com/phrazzld/techtree-api/internal/task"
)

// API is the subset of the DynamoDB client the store calls.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Condition expressions. A lesson interaction that is pending or processing
// also owns a lock item keyed by learner and lesson, written in the same
// transaction as the task, so a second one cannot be stored.
const (
	condAbsent     = "attribute_not_exists(task_id)"
	condPresent    = "attribute_exists(task_id)"
	condFreeOrHeld = "attribute_not_exists(task_id) OR holder = :holder"
	condHeldBy     = "holder = :holder"
)

var (
	errTaskCondition = errors.New("task condition failed")
	errLockHeld      = errors.New("interaction lock held")
)

// TaskStore implements task.Store on a DynamoDB table. List and
// CountByStatus scan the table, which suits the modest volume of tutoring
// tasks.
type TaskStore struct {
	db     API
	table  string
	logger *slog.Logger
	now    func() time.Time
}

var _ task.Store = (*TaskStore)(nil)

// NewTaskStore builds a client from the default AWS credential chain. A
// non-empty cfg.Endpoint points it at a local DynamoDB.
func NewTaskStore(ctx context.Context, cfg config.DynamoDBConfig, logger *slog.Logger) (*TaskStore, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logger.Info("using dynamodb task store",
		"table", cfg.Table,
		"region", cfg.Region,
		"endpoint", cfg.Endpoint)
	return NewTaskStoreWithClient(client, cfg.Table, logger), nil
}

// NewTaskStoreWithClient wraps an existing client.
func NewTaskStoreWithClient(db API, table string, logger *slog.Logger) *TaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskStore{
		db:     db,
		table:  table,
		logger: logger.With(slog.String("component", "dynamo_task_store")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create puts rec unless an item with the same id exists, or rec is a
// lesson interaction and another one is in flight for the same learner and
// lesson.
func (s *TaskStore) Create(ctx context.Context, rec *task.Record) error {
	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	err := s.write(ctx, rec, condAbsent)
	switch {
	case errors.Is(err, errTaskCondition):
		return fmt.Errorf("%w: task %s", store.ErrDuplicate, rec.ID)
	case errors.Is(err, errLockHeld):
		logger.FromContextOrDefault(ctx, s.logger).Info("interaction already in flight",
			slog.String("task_id", rec.ID.String()))
		return fmt.Errorf("%w: lesson %s", task.ErrTaskInFlight, idString(rec.LessonID))
	case err != nil:
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", rec.ID.String()))
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// Update replaces an existing item, taking or releasing the interaction
// lock as rec moves in or out of flight.
func (s *TaskStore) Update(ctx context.Context, rec *task.Record) error {
	rec.UpdatedAt = s.now()

	err := s.write(ctx, rec, condPresent)
	switch {
	case errors.Is(err, errTaskCondition):
		return store.ErrTaskNotFound
	case errors.Is(err, errLockHeld):
		return fmt.Errorf("%w: lesson %s", task.ErrTaskInFlight, idString(rec.LessonID))
	case err != nil:
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to update task",
			slog.String("error", err.Error()),
			slog.String("task_id", rec.ID.String()),
			slog.String("status", string(rec.Status)))
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

// Get reads one item by id.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*task.Record, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"task_id": &types.AttributeValueMemberS{Value: id.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if out.Item == nil {
		return nil, store.ErrTaskNotFound
	}

	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return it.record()
}

// List scans the table and applies f in memory.
func (s *TaskStore) List(ctx context.Context, f task.Filter) ([]*task.Record, error) {
	items, err := s.scan(ctx, &dynamodb.ScanInput{TableName: aws.String(s.table)})
	if err != nil {
		return nil, err
	}

	var out []*task.Record
	for _, it := range items {
		if isLockKey(it.TaskID) {
			continue
		}
		rec, err := it.record()
		if err != nil {
			s.logger.Warn("skipping undecodable task item", "error", err)
			continue
		}
		if f.Matches(rec) {
			out = append(out, rec)
		}
	}
	task.SortNewestFirst(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// CountByStatus scans only the key and status attributes.
func (s *TaskStore) CountByStatus(ctx context.Context) (map[task.Status]int, error) {
	items, err := s.scan(ctx, &dynamodb.ScanInput{
		TableName:                aws.String(s.table),
		ProjectionExpression:     aws.String("task_id, #st"),
		ExpressionAttributeNames: map[string]string{"#st": "status"},
	})
	if err != nil {
		return nil, err
	}

	counts := make(map[task.Status]int)
	for _, it := range items {
		if isLockKey(it.TaskID) {
			continue
		}
		counts[task.Status(it.Status)]++
	}
	return counts, nil
}

// write stores rec under taskCondition. Interaction records go through a
// transaction with their lock item.
func (s *TaskStore) write(ctx context.Context, rec *task.Record, taskCondition string) error {
	if !rec.Exclusive() {
		err := s.put(ctx, rec, taskCondition)
		if isConditionFailed(err) {
			return errTaskCondition
		}
		return err
	}

	err := s.transact(ctx, rec, taskCondition, condFreeOrHeld, rec.ID.String())
	if !errors.Is(err, errLockHeld) {
		return err
	}

	if !rec.Status.InFlight() {
		// The lock belongs to another task, so there is nothing to release.
		err := s.put(ctx, rec, taskCondition)
		if isConditionFailed(err) {
			return errTaskCondition
		}
		return err
	}

	holder, stale, lerr := s.staleHolder(ctx, lockKey(rec))
	if lerr != nil {
		return lerr
	}
	if !stale {
		return err
	}
	s.logger.Warn("taking over stale interaction lock",
		slog.String("task_id", rec.ID.String()),
		slog.String("previous_holder", holder))
	return s.transact(ctx, rec, taskCondition, condHeldBy, holder)
}

// transact writes rec and, in the same transaction, puts its lock while
// rec is in flight or deletes it otherwise. lockCondition is evaluated with
// :holder bound to holder.
func (s *TaskStore) transact(ctx context.Context, rec *task.Record, taskCondition, lockCondition, holder string) error {
	av, err := attributevalue.MarshalMap(toItem(rec))
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}

	k := lockKey(rec)
	values := map[string]types.AttributeValue{
		":holder": &types.AttributeValueMemberS{Value: holder},
	}

	var lock types.TransactWriteItem
	if rec.Status.InFlight() {
		lav, err := attributevalue.MarshalMap(lockItem{TaskID: k, Holder: rec.ID.String()})
		if err != nil {
			return fmt.Errorf("failed to encode interaction lock: %w", err)
		}
		lock.Put = &types.Put{
			TableName:                 aws.String(s.table),
			Item:                      lav,
			ConditionExpression:       aws.String(lockCondition),
			ExpressionAttributeValues: values,
		}
	} else {
		lock.Delete = &types.Delete{
			TableName: aws.String(s.table),
			Key: map[string]types.AttributeValue{
				"task_id": &types.AttributeValueMemberS{Value: k},
			},
			ConditionExpression:       aws.String(lockCondition),
			ExpressionAttributeValues: values,
		}
	}

	_, err = s.db.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(s.table),
				Item:                av,
				ConditionExpression: aws.String(taskCondition),
			}},
			lock,
		},
	})

	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		switch {
		case conditionFailedAt(canceled, 0):
			return errTaskCondition
		case conditionFailedAt(canceled, 1):
			return errLockHeld
		}
	}
	return err
}

// staleHolder reads the lock at key and reports its holder when that task
// is gone or no longer in flight.
func (s *TaskStore) staleHolder(ctx context.Context, key string) (string, bool, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"task_id": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to read interaction lock: %w", err)
	}
	if out.Item == nil {
		return "", false, nil
	}

	var lk lockItem
	if err := attributevalue.UnmarshalMap(out.Item, &lk); err != nil {
		return "", false, fmt.Errorf("failed to decode interaction lock: %w", err)
	}
	id, err := uuid.Parse(lk.Holder)
	if err != nil {
		return lk.Holder, true, nil
	}

	holder, err := s.Get(ctx, id)
	if errors.Is(err, store.ErrTaskNotFound) {
		return lk.Holder, true, nil
	}
	if err != nil {
		return "", false, err
	}
	return lk.Holder, !holder.Status.InFlight(), nil
}

func conditionFailedAt(e *types.TransactionCanceledException, i int) bool {
	return i < len(e.CancellationReasons) &&
		aws.ToString(e.CancellationReasons[i].Code) == "ConditionalCheckFailed"
}

func isLockKey(id string) bool {
	return strings.HasPrefix(id, lockPrefix)
}

func (s *TaskStore) put(ctx context.Context, rec *task.Record, condition string) error {
	av, err := attributevalue.MarshalMap(toItem(rec))
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                av,
		ConditionExpression: aws.String(condition),
	})
	return err
}

func (s *TaskStore) scan(ctx context.Context, in *dynamodb.ScanInput) ([]item, error) {
	var items []item
	pages := dynamodb.NewScanPaginator(s.db, in)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tasks: %w", err)
		}
		var batch []item
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("failed to decode tasks: %w", err)
		}
		items = append(items, batch...)
	}
	return items, nil
}

func isConditionFailed(err error) bool {
	var cfe *types.ConditionalCheckFailedException
	return errors.As(err, &cfe)
}
