package support

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"care-support-backend/internal/database"
	"care-support-backend/internal/model"
)

var (
	ErrNotFound = errors.New("support repository: not found")

	// ErrAlreadyExists reports a lost insert-if-absent race: a row with the
	// same key was created by a concurrent writer.
	ErrAlreadyExists = errors.New("support repository: already exists")

	// ErrConflict reports a guarded status update whose precondition no
	// longer held at write time.
	ErrConflict = errors.New("support repository: conditional update rejected")
)

// Repository is the conversation store surface the orchestrator runs
// against. Status updates are compare-and-swap: the write applies only
// while the stored status is one of expect, otherwise ErrConflict.
// CreateTicket is insert-if-absent keyed by session id, which is the
// store-level half of the one-ticket-per-session guarantee.
type Repository interface {
	CreateSession(ctx context.Context, session model.SessionItem) error
	GetSession(ctx context.Context, sessionID string) (model.SessionItem, error)
	ListSessionsByUser(ctx context.Context, userID string, limit int) ([]model.SessionItem, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, expect []model.SessionStatus, to model.SessionStatus, handlerID *string, updatedAt, closedAt string) error

	AppendMessage(ctx context.Context, message model.MessageItem) error
	ListMessages(ctx context.Context, sessionID string, limit int) ([]model.MessageItem, error)

	CreateTicket(ctx context.Context, ticket model.TicketItem) error
	GetTicketBySession(ctx context.Context, sessionID string) (model.TicketItem, error)
	ListTickets(ctx context.Context, status model.TicketStatus, priority model.Priority, limit int) ([]model.TicketItem, error)
	UpdateTicketStatus(ctx context.Context, sessionID string, expect []model.TicketStatus, to model.TicketStatus, updatedAt, resolvedAt string) error

	GetProduct(ctx context.Context, productID string) (model.ProductItem, error)
	GetHandler(ctx context.Context, handlerID string) (model.HandlerItem, error)
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func (r *DynamoRepository) CreateSession(ctx context.Context, session model.SessionItem) error {
	return r.db.Client.PutItemIfAbsent(ctx, model.SessionsTable, "pk", session)
}

func (r *DynamoRepository) GetSession(ctx context.Context, sessionID string) (model.SessionItem, error) {
	var session model.SessionItem
	err := r.db.Client.GetItem(
		ctx,
		model.SessionsTable,
		map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: model.SessionPK(sessionID)},
		},
		&session,
	)
	if err != nil {
		if isNotFound(err) {
			return model.SessionItem{}, ErrNotFound
		}
		return model.SessionItem{}, err
	}
	return session, nil
}

func (r *DynamoRepository) ListSessionsByUser(ctx context.Context, userID string, limit int) ([]model.SessionItem, error) {
	items, err := r.db.Client.QueryItems(
		ctx,
		model.SessionsTable,
		aws.String("byUser"),
		"userId = :userId",
		map[string]types.AttributeValue{
			":userId": &types.AttributeValueMemberS{Value: userID},
		},
		nil,
		nil,
	)
	if err != nil {
		return nil, err
	}

	sessions := make([]model.SessionItem, 0, len(items))
	for _, item := range items {
		var session model.SessionItem
		if err := attributevalue.UnmarshalMap(item, &session); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt > sessions[j].CreatedAt
	})

	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (r *DynamoRepository) UpdateSessionStatus(ctx context.Context, sessionID string, expect []model.SessionStatus, to model.SessionStatus, handlerID *string, updatedAt, closedAt string) error {
	updateExpr := "SET #status = :to, #updatedAt = :updatedAt"
	removeExpr := ""
	exprValues := map[string]types.AttributeValue{
		":to":        &types.AttributeValueMemberS{Value: string(to)},
		":updatedAt": &types.AttributeValueMemberS{Value: updatedAt},
	}
	attrNames := map[string]string{
		"#status":    "status",
		"#updatedAt": "updatedAt",
	}

	if handlerID != nil {
		if *handlerID == "" {
			removeExpr = " REMOVE #assignedHandlerId"
		} else {
			updateExpr += ", #assignedHandlerId = :handlerId"
			exprValues[":handlerId"] = &types.AttributeValueMemberS{Value: *handlerID}
		}
		attrNames["#assignedHandlerId"] = "assignedHandlerId"
	}
	if closedAt != "" {
		updateExpr += ", #closedAt = :closedAt"
		exprValues[":closedAt"] = &types.AttributeValueMemberS{Value: closedAt}
		attrNames["#closedAt"] = "closedAt"
	}

	condExpr := statusCondition(sessionStatusStrings(expect), exprValues)

	err := r.db.Client.UpdateItem(
		ctx,
		model.SessionsTable,
		map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: model.SessionPK(sessionID)},
		},
		updateExpr+removeExpr,
		condExpr,
		exprValues,
		attrNames,
		nil,
	)
	if database.IsConditionFailed(err) {
		return ErrConflict
	}
	return err
}

func (r *DynamoRepository) AppendMessage(ctx context.Context, message model.MessageItem) error {
	return r.db.Client.PutItem(ctx, model.MessagesTable, message)
}

func (r *DynamoRepository) ListMessages(ctx context.Context, sessionID string, limit int) ([]model.MessageItem, error) {
	scanForward := true
	items, err := r.db.Client.QueryItems(
		ctx,
		model.MessagesTable,
		aws.String("bySession"),
		"sessionId = :sessionId",
		map[string]types.AttributeValue{
			":sessionId": &types.AttributeValueMemberS{Value: sessionID},
		},
		nil,
		&scanForward,
	)
	if err != nil {
		return nil, err
	}

	messages := make([]model.MessageItem, 0, len(items))
	for _, item := range items {
		var message model.MessageItem
		if err := attributevalue.UnmarshalMap(item, &message); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		ti := parseTime(messages[i].CreatedAt)
		tj := parseTime(messages[j].CreatedAt)
		return ti.Before(tj)
	})

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

func (r *DynamoRepository) CreateTicket(ctx context.Context, ticket model.TicketItem) error {
	err := r.db.Client.PutItemIfAbsent(ctx, model.TicketsTable, "pk", ticket)
	if database.IsConditionFailed(err) {
		return ErrAlreadyExists
	}
	return err
}

func (r *DynamoRepository) GetTicketBySession(ctx context.Context, sessionID string) (model.TicketItem, error) {
	var ticket model.TicketItem
	err := r.db.Client.GetItem(
		ctx,
		model.TicketsTable,
		map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: model.TicketPK(sessionID)},
		},
		&ticket,
	)
	if err != nil {
		if isNotFound(err) {
			return model.TicketItem{}, ErrNotFound
		}
		return model.TicketItem{}, err
	}
	return ticket, nil
}

// ListTickets serves the handler console queue. Ticket volume is bounded by
// session volume, so a filtered scan is acceptable here.
func (r *DynamoRepository) ListTickets(ctx context.Context, status model.TicketStatus, priority model.Priority, limit int) ([]model.TicketItem, error) {
	filterExpr := ""
	exprValues := map[string]types.AttributeValue{}
	attrNames := map[string]string{}

	if status != "" {
		filterExpr = "#status = :status"
		exprValues[":status"] = &types.AttributeValueMemberS{Value: string(status)}
		attrNames["#status"] = "status"
	}
	if priority != "" {
		if filterExpr != "" {
			filterExpr += " AND "
		}
		filterExpr += "#priority = :priority"
		exprValues[":priority"] = &types.AttributeValueMemberS{Value: string(priority)}
		attrNames["#priority"] = "priority"
	}
	if filterExpr == "" {
		exprValues = nil
		attrNames = nil
	}

	items, err := r.db.Client.ScanItems(ctx, model.TicketsTable, filterExpr, exprValues, attrNames)
	if err != nil {
		return nil, err
	}

	tickets := make([]model.TicketItem, 0, len(items))
	for _, item := range items {
		var ticket model.TicketItem
		if err := attributevalue.UnmarshalMap(item, &ticket); err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}

	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].CreatedAt > tickets[j].CreatedAt
	})

	if limit > 0 && len(tickets) > limit {
		tickets = tickets[:limit]
	}
	return tickets, nil
}

func (r *DynamoRepository) UpdateTicketStatus(ctx context.Context, sessionID string, expect []model.TicketStatus, to model.TicketStatus, updatedAt, resolvedAt string) error {
	updateExpr := "SET #status = :to, #updatedAt = :updatedAt"
	exprValues := map[string]types.AttributeValue{
		":to":        &types.AttributeValueMemberS{Value: string(to)},
		":updatedAt": &types.AttributeValueMemberS{Value: updatedAt},
	}
	attrNames := map[string]string{
		"#status":    "status",
		"#updatedAt": "updatedAt",
	}

	if resolvedAt != "" {
		updateExpr += ", #resolvedAt = :resolvedAt"
		exprValues[":resolvedAt"] = &types.AttributeValueMemberS{Value: resolvedAt}
		attrNames["#resolvedAt"] = "resolvedAt"
	}

	condExpr := statusCondition(ticketStatusStrings(expect), exprValues)

	err := r.db.Client.UpdateItem(
		ctx,
		model.TicketsTable,
		map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: model.TicketPK(sessionID)},
		},
		updateExpr,
		condExpr,
		exprValues,
		attrNames,
		nil,
	)
	if database.IsConditionFailed(err) {
		return ErrConflict
	}
	return err
}

func (r *DynamoRepository) GetProduct(ctx context.Context, productID string) (model.ProductItem, error) {
	var product model.ProductItem
	err := r.db.Client.GetItem(
		ctx,
		model.ProductsTable,
		map[string]types.AttributeValue{
			"productId": &types.AttributeValueMemberS{Value: productID},
		},
		&product,
	)
	if err != nil {
		if isNotFound(err) {
			return model.ProductItem{}, ErrNotFound
		}
		return model.ProductItem{}, err
	}
	return product, nil
}

func (r *DynamoRepository) GetHandler(ctx context.Context, handlerID string) (model.HandlerItem, error) {
	var handler model.HandlerItem
	err := r.db.Client.GetItem(
		ctx,
		model.HandlersTable,
		map[string]types.AttributeValue{
			"handlerId": &types.AttributeValueMemberS{Value: handlerID},
		},
		&handler,
	)
	if err != nil {
		if isNotFound(err) {
			return model.HandlerItem{}, ErrNotFound
		}
		return model.HandlerItem{}, err
	}
	return handler, nil
}

// statusCondition builds "#status = :e0 OR #status = :e1 ..." and registers
// the expected values. The guarded update also requires the row to exist.
func statusCondition(expect []string, exprValues map[string]types.AttributeValue) string {
	if len(expect) == 0 {
		return ""
	}
	parts := make([]string, 0, len(expect))
	for i, status := range expect {
		placeholder := ":expect" + string(rune('0'+i))
		exprValues[placeholder] = &types.AttributeValueMemberS{Value: status}
		parts = append(parts, "#status = "+placeholder)
	}
	return strings.Join(parts, " OR ")
}

func sessionStatusStrings(statuses []model.SessionStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func ticketStatusStrings(statuses []model.TicketStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "item not found")
}

func parseTime(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}
	}
	return t
}
