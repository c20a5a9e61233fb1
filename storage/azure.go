package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	"github.com/minus-twelve/tablesess/types"
)

const (
	errCodeTableNotFound      = "TableNotFound"
	errCodeResourceNotFound   = "ResourceNotFound"
	errCodeEntityNotFound     = "EntityNotFound"
	errCodeTableAlreadyExists = "TableAlreadyExists"
)

// AzureBackend stores one partition of an Azure Storage table.
type AzureBackend struct {
	client       *aztables.Client
	table        string
	partitionKey string
	timeout      time.Duration
}

// NewAzureBackend connects with the account name and key from cfg, or with
// cfg.ConnectionString when one is set.
func NewAzureBackend(table, partitionKey string, cfg types.AzureConfig) (*AzureBackend, error) {
	var (
		service *aztables.ServiceClient
		err     error
	)

	if cfg.ConnectionString != "" {
		service, err = aztables.NewServiceClientFromConnectionString(cfg.ConnectionString, nil)
	} else {
		var cred *aztables.SharedKeyCredential
		cred, err = aztables.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("azure credential: %w", err)
		}

		serviceURL := cfg.ServiceURL
		if serviceURL == "" {
			serviceURL = fmt.Sprintf("https://%s.table.core.windows.net/", cfg.AccountName)
		}
		service, err = aztables.NewServiceClientWithSharedKey(serviceURL, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("azure table service: %w", err)
	}

	return &AzureBackend{
		client:       service.NewClient(table),
		table:        table,
		partitionKey: partitionKey,
		timeout:      cfg.Timeout,
	}, nil
}

func (a *AzureBackend) PartitionKey() string {
	return a.partitionKey
}

func (a *AzureBackend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}

func (a *AzureBackend) EnsureTable(ctx context.Context) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	_, err := a.client.CreateTable(ctx, nil)
	if err != nil && responseCode(err) != errCodeTableAlreadyExists {
		return fmt.Errorf("create table %s: %w", a.table, err)
	}
	return nil
}

func (a *AzureBackend) Retrieve(ctx context.Context, rowKey string) (types.Entity, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	resp, err := a.client.GetEntity(ctx, a.partitionKey, rowKey, nil)
	if err != nil {
		return types.Entity{}, classify(err)
	}
	return decodeEntity(resp.Value)
}

func (a *AzureBackend) Upsert(ctx context.Context, e types.Entity) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	row := make(map[string]interface{}, len(e.Properties)+2)
	for k, v := range e.Properties {
		row[k] = v
	}
	row["PartitionKey"] = a.partitionKey
	row["RowKey"] = e.RowKey

	body, err := sonic.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal entity %s: %w", e.RowKey, err)
	}

	_, err = a.client.UpsertEntity(ctx, body, &aztables.UpsertEntityOptions{
		UpdateMode: aztables.UpdateModeReplace,
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

func (a *AzureBackend) Delete(ctx context.Context, rowKey string) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	_, err := a.client.DeleteEntity(ctx, a.partitionKey, rowKey, nil)
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// QueryAll follows every continuation page of a partition query.
func (a *AzureBackend) QueryAll(ctx context.Context) ([]types.Entity, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s'", strings.ReplaceAll(a.partitionKey, "'", "''"))
	pager := a.client.NewListEntitiesPager(&aztables.ListEntitiesOptions{
		Filter: &filter,
	})

	var entities []types.Entity
	for pager.More() {
		page, err := a.nextPage(ctx, pager.NextPage)
		if err != nil {
			return nil, classify(err)
		}
		for _, raw := range page.Entities {
			e, err := decodeEntity(raw)
			if err != nil {
				return nil, err
			}
			entities = append(entities, e)
		}
	}
	return entities, nil
}

func (a *AzureBackend) nextPage(ctx context.Context, next func(context.Context) (aztables.ListEntitiesResponse, error)) (aztables.ListEntitiesResponse, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	return next(ctx)
}

func decodeEntity(raw []byte) (types.Entity, error) {
	var row map[string]interface{}
	if err := sonic.Unmarshal(raw, &row); err != nil {
		return types.Entity{}, fmt.Errorf("unmarshal entity: %w", err)
	}

	e := types.Entity{Properties: make(map[string]interface{}, len(row))}
	for k, v := range row {
		switch k {
		case "PartitionKey":
			e.PartitionKey, _ = v.(string)
		case "RowKey":
			e.RowKey, _ = v.(string)
		case "Timestamp":
			if ts, ok := v.(string); ok {
				e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
			}
		default:
			e.Properties[k] = v
		}
	}
	return e, nil
}

func responseCode(err error) string {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.ErrorCode
	}
	return ""
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

// classify maps service error codes onto the backend error taxonomy.
func classify(err error) error {
	switch responseCode(err) {
	case errCodeTableNotFound:
		return fmt.Errorf("%w: %v", types.ErrTableMissing, err)
	case errCodeResourceNotFound, errCodeEntityNotFound:
		return fmt.Errorf("%w: %v", types.ErrNotFound, err)
	}
	if isNotFound(err) {
		return fmt.Errorf("%w: %v", types.ErrNotFound, err)
	}
	return err
}
