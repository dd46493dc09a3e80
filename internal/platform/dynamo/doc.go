// Package dynamo stores task records in a DynamoDB table keyed by task_id.
// Timestamps are kept as epoch milliseconds.
package dynamo
