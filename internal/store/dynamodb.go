package store

import (
	"context"
	"errors"
	"fmt"

	platformaws "github.com/agatticelli/wavepick-sync/internal/platform/aws"
	"github.com/agatticelli/wavepick-sync/internal/session"
)

const documentKey = "document_id"

// DynamoOrderStore keeps orders in a DynamoDB table keyed by document_id
type DynamoOrderStore struct {
	client *platformaws.DynamoClient
	table  string
}

// NewDynamoOrderStore creates a store on table
func NewDynamoOrderStore(client *platformaws.DynamoClient, table string) (*DynamoOrderStore, error) {
	if client == nil {
		return nil, fmt.Errorf("dynamodb client is required")
	}
	if table == "" {
		return nil, fmt.Errorf("table name is required")
	}
	return &DynamoOrderStore{client: client, table: table}, nil
}

// Get loads the order with documentID
func (s *DynamoOrderStore) Get(ctx context.Context, documentID string) (*session.Order, error) {
	var o session.Order
	err := s.client.GetItem(ctx, s.table, map[string]any{documentKey: documentID}, &o)
	if errors.Is(err, platformaws.ErrItemNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Put writes order, replacing the stored version
func (s *DynamoOrderStore) Put(ctx context.Context, order *session.Order) error {
	if order.DocumentID == "" {
		return errors.New("store: document id is required")
	}
	return s.client.PutItem(ctx, s.table, order)
}
