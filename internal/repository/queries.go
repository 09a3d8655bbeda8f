package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/qaddoumi/tahweel/internal/domain"
	"github.com/qaddoumi/tahweel/internal/models"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx alike so the same query set
// runs inside and outside transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a query set bound to an open transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

type scanner interface {
	Scan(dest ...any) error
}

// ---- exchanges ----

const exchangeColumns = `id, name, balance, allow_negative_balance,
	incoming_commission_kind, incoming_commission_value,
	outgoing_commission_kind, outgoing_commission_value,
	allowed_incoming_banks, allowed_outgoing_banks, created_at, updated_at`

func scanExchange(row scanner) (models.Exchange, error) {
	var (
		ex   models.Exchange
		id   pgtype.UUID
		inK  string
		outK string
	)
	err := row.Scan(
		&id, &ex.Name, &ex.Balance, &ex.AllowNegativeBalance,
		&inK, &ex.IncomingCommission.Value,
		&outK, &ex.OutgoingCommission.Value,
		&ex.AllowedIncomingBanks, &ex.AllowedOutgoingBanks,
		&ex.CreatedAt, &ex.UpdatedAt,
	)
	if err != nil {
		return models.Exchange{}, err
	}
	ex.ID = FromPgUUID(id)
	ex.IncomingCommission.Kind = domain.CommissionKind(inK)
	ex.OutgoingCommission.Kind = domain.CommissionKind(outK)
	return ex, nil
}

type CreateExchangeParams struct {
	ID                   pgtype.UUID
	Name                 string
	Balance              decimal.Decimal
	AllowNegativeBalance bool
	IncomingCommission   domain.CommissionPolicy
	OutgoingCommission   domain.CommissionPolicy
	AllowedIncomingBanks []string
	AllowedOutgoingBanks []string
}

func (q *Queries) CreateExchange(ctx context.Context, arg CreateExchangeParams) (models.Exchange, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO exchanges (
			id, name, balance, allow_negative_balance,
			incoming_commission_kind, incoming_commission_value,
			outgoing_commission_kind, outgoing_commission_value,
			allowed_incoming_banks, allowed_outgoing_banks, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING `+exchangeColumns,
		arg.ID, arg.Name, arg.Balance, arg.AllowNegativeBalance,
		string(arg.IncomingCommission.Kind), arg.IncomingCommission.Value,
		string(arg.OutgoingCommission.Kind), arg.OutgoingCommission.Value,
		arg.AllowedIncomingBanks, arg.AllowedOutgoingBanks,
	)
	return scanExchange(row)
}

func (q *Queries) GetExchange(ctx context.Context, id pgtype.UUID) (models.Exchange, error) {
	row := q.db.QueryRow(ctx, `SELECT `+exchangeColumns+` FROM exchanges WHERE id = $1`, id)
	return scanExchange(row)
}

// GetExchangeForUpdate takes the row lock serializing all balance mutations
// and state transitions for this exchange until the transaction ends.
func (q *Queries) GetExchangeForUpdate(ctx context.Context, id pgtype.UUID) (models.Exchange, error) {
	row := q.db.QueryRow(ctx, `SELECT `+exchangeColumns+` FROM exchanges WHERE id = $1 FOR UPDATE`, id)
	return scanExchange(row)
}

type UpdateExchangeBalanceParams struct {
	Balance decimal.Decimal
	ID      pgtype.UUID
}

func (q *Queries) UpdateExchangeBalance(ctx context.Context, arg UpdateExchangeBalanceParams) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE exchanges SET balance = $1, updated_at = NOW() WHERE id = $2`,
		arg.Balance, arg.ID)
	return tag.RowsAffected(), err
}

type UpdateExchangeCommissionParams struct {
	ID        pgtype.UUID
	Direction domain.Direction
	Policy    domain.CommissionPolicy
}

func (q *Queries) UpdateExchangeCommission(ctx context.Context, arg UpdateExchangeCommissionParams) (int64, error) {
	query := `UPDATE exchanges SET incoming_commission_kind = $1, incoming_commission_value = $2, updated_at = NOW() WHERE id = $3`
	if arg.Direction == domain.DirectionOutgoing {
		query = `UPDATE exchanges SET outgoing_commission_kind = $1, outgoing_commission_value = $2, updated_at = NOW() WHERE id = $3`
	}
	tag, err := q.db.Exec(ctx, query, string(arg.Policy.Kind), arg.Policy.Value, arg.ID)
	return tag.RowsAffected(), err
}

type UpdateExchangeBanksParams struct {
	ID        pgtype.UUID
	Direction domain.Direction
	Banks     []string
}

func (q *Queries) UpdateExchangeBanks(ctx context.Context, arg UpdateExchangeBanksParams) (int64, error) {
	query := `UPDATE exchanges SET allowed_incoming_banks = $1, updated_at = NOW() WHERE id = $2`
	if arg.Direction == domain.DirectionOutgoing {
		query = `UPDATE exchanges SET allowed_outgoing_banks = $1, updated_at = NOW() WHERE id = $2`
	}
	tag, err := q.db.Exec(ctx, query, arg.Banks, arg.ID)
	return tag.RowsAffected(), err
}

// ---- orders ----

const orderColumns = `id, order_number, exchange_id, direction, status,
	amount, commission, net_amount,
	sender_name, recipient_name, bank_name, cliq_alias_name, cliq_mobile_number,
	payment_proof_ref, completion_proof_ref, rejection_reason,
	cancellation_requested, cancellation_reason,
	created_at, approved_at, completed_at, updated_at`

func scanOrder(row scanner) (models.Order, error) {
	var (
		o          models.Order
		id         pgtype.UUID
		exchangeID pgtype.UUID
		direction  string
		status     string
	)
	err := row.Scan(
		&id, &o.OrderNumber, &exchangeID, &direction, &status,
		&o.Amount, &o.Commission, &o.NetAmount,
		&o.SenderName, &o.RecipientName, &o.BankName, &o.CliqAliasName, &o.CliqMobileNumber,
		&o.PaymentProofRef, &o.CompletionProofRef, &o.RejectionReason,
		&o.CancellationRequested, &o.CancellationReason,
		&o.CreatedAt, &o.ApprovedAt, &o.CompletedAt, &o.UpdatedAt,
	)
	if err != nil {
		return models.Order{}, err
	}
	o.ID = FromPgUUID(id)
	o.ExchangeID = FromPgUUID(exchangeID)
	o.Direction = domain.Direction(direction)
	o.Status = domain.Status(status)
	return o, nil
}

type InsertOrderParams struct {
	ID               pgtype.UUID
	OrderNumber      string
	ExchangeID       pgtype.UUID
	Direction        domain.Direction
	Status           domain.Status
	Amount           decimal.Decimal
	Commission       decimal.Decimal
	NetAmount        decimal.Decimal
	SenderName       *string
	RecipientName    *string
	BankName         *string
	CliqAliasName    *string
	CliqMobileNumber *string
	PaymentProofRef  *string
}

func (q *Queries) InsertOrder(ctx context.Context, arg InsertOrderParams) (models.Order, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO orders (
			id, order_number, exchange_id, direction, status,
			amount, commission, net_amount,
			sender_name, recipient_name, bank_name, cliq_alias_name, cliq_mobile_number,
			payment_proof_ref, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		RETURNING `+orderColumns,
		arg.ID, arg.OrderNumber, arg.ExchangeID, string(arg.Direction), string(arg.Status),
		arg.Amount, arg.Commission, arg.NetAmount,
		arg.SenderName, arg.RecipientName, arg.BankName, arg.CliqAliasName, arg.CliqMobileNumber,
		arg.PaymentProofRef,
	)
	return scanOrder(row)
}

func (q *Queries) GetOrder(ctx context.Context, id pgtype.UUID) (models.Order, error) {
	row := q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

// GetOrderForUpdate locks the order row so review, completion and
// cancellation resolution against the same order are mutually exclusive.
func (q *Queries) GetOrderForUpdate(ctx context.Context, id pgtype.UUID) (models.Order, error) {
	row := q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	return scanOrder(row)
}

type ListOrdersByExchangeParams struct {
	ExchangeID pgtype.UUID
	Limit      int32
	Offset     int32
}

func (q *Queries) ListOrdersByExchange(ctx context.Context, arg ListOrdersByExchangeParams) ([]models.Order, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE exchange_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		arg.ExchangeID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (q *Queries) MarkOrderProcessing(ctx context.Context, id pgtype.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE orders SET status = $1, approved_at = NOW(), updated_at = NOW() WHERE id = $2`,
		string(domain.StatusProcessing), id)
	return tag.RowsAffected(), err
}

type MarkOrderRejectedParams struct {
	ID     pgtype.UUID
	Reason string
}

func (q *Queries) MarkOrderRejected(ctx context.Context, arg MarkOrderRejectedParams) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE orders SET status = $1, rejection_reason = $2, updated_at = NOW() WHERE id = $3`,
		string(domain.StatusRejected), arg.Reason, arg.ID)
	return tag.RowsAffected(), err
}

type MarkOrderCompletedParams struct {
	ID                 pgtype.UUID
	CompletionProofRef *string
}

func (q *Queries) MarkOrderCompleted(ctx context.Context, arg MarkOrderCompletedParams) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE orders SET status = $1, completion_proof_ref = COALESCE($2, completion_proof_ref),
			completed_at = NOW(), updated_at = NOW() WHERE id = $3`,
		string(domain.StatusCompleted), arg.CompletionProofRef, arg.ID)
	return tag.RowsAffected(), err
}

type SetOrderCancellationRequestedParams struct {
	ID     pgtype.UUID
	Reason *string
}

func (q *Queries) SetOrderCancellationRequested(ctx context.Context, arg SetOrderCancellationRequestedParams) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE orders SET cancellation_requested = TRUE, cancellation_reason = $1, updated_at = NOW() WHERE id = $2`,
		arg.Reason, arg.ID)
	return tag.RowsAffected(), err
}

func (q *Queries) ClearOrderCancellation(ctx context.Context, id pgtype.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE orders SET cancellation_requested = FALSE, updated_at = NOW() WHERE id = $1`,
		id)
	return tag.RowsAffected(), err
}

func (q *Queries) MarkOrderCancelled(ctx context.Context, id pgtype.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE orders SET status = $1, cancellation_requested = FALSE, updated_at = NOW() WHERE id = $2`,
		string(domain.StatusCancelled), id)
	return tag.RowsAffected(), err
}

// CountUnreviewedOlderThan counts orders still awaiting review past a cutoff.
// Feeds the urgency gauge; never drives a state change.
func (q *Queries) CountUnreviewedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE status IN ($1, $2) AND created_at < $3`,
		string(domain.StatusSubmitted), string(domain.StatusPendingReview), cutoff,
	).Scan(&count)
	return count, err
}

// ---- ledger ----

type InsertLedgerEntryParams struct {
	ID         pgtype.UUID
	ExchangeID pgtype.UUID
	OrderID    pgtype.UUID // zero value writes NULL
	Amount     decimal.Decimal
	Direction  string
	Reason     string
}

func (q *Queries) InsertLedgerEntry(ctx context.Context, arg InsertLedgerEntryParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO ledger_entries (id, exchange_id, order_id, amount, direction, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		arg.ID, arg.ExchangeID, arg.OrderID, arg.Amount, arg.Direction, arg.Reason)
	return err
}

type ExchangeLedgerNet struct {
	ExchangeID uuid.UUID
	Balance    decimal.Decimal
	Net        decimal.Decimal
}

// GetExchangeLedgerNets returns, per exchange, the stored balance alongside
// the net of its ledger entries. The two must agree.
func (q *Queries) GetExchangeLedgerNets(ctx context.Context) ([]ExchangeLedgerNet, error) {
	rows, err := q.db.Query(ctx, `
		SELECT e.id, e.balance,
			COALESCE(SUM(CASE WHEN l.direction = 'credit' THEN l.amount ELSE -l.amount END), 0)
		FROM exchanges e
		LEFT JOIN ledger_entries l ON l.exchange_id = e.id
		GROUP BY e.id, e.balance`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nets []ExchangeLedgerNet
	for rows.Next() {
		var (
			n  ExchangeLedgerNet
			id pgtype.UUID
		)
		if err := rows.Scan(&id, &n.Balance, &n.Net); err != nil {
			return nil, err
		}
		n.ExchangeID = FromPgUUID(id)
		nets = append(nets, n)
	}
	return nets, rows.Err()
}

// ---- audit log ----

type InsertAuditLogParams struct {
	EntityType string
	EntityID   pgtype.UUID
	ActorID    pgtype.UUID
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
}

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO audit_log (entity_type, entity_id, actor_id, action, prev_state, next_state, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id`,
		arg.EntityType, arg.EntityID, arg.ActorID, arg.Action, arg.PrevState, arg.NextState, arg.Metadata,
	).Scan(&id)
	return id, err
}

// ---- idempotency keys ----

type IdempotencyKey struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	InProgress     bool
}

const idempotencyColumns = `idempotency_key, request_hash, method, path,
	response_status, response_body, content_type, in_progress`

func scanIdempotencyKey(row scanner) (IdempotencyKey, error) {
	var k IdempotencyKey
	err := row.Scan(&k.IdempotencyKey, &k.RequestHash, &k.Method, &k.Path,
		&k.ResponseStatus, &k.ResponseBody, &k.ContentType, &k.InProgress)
	return k, err
}

func (q *Queries) GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKey, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+idempotencyColumns+` FROM idempotency_keys WHERE idempotency_key = $1`, key)
	return scanIdempotencyKey(row)
}

type ReserveIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
}

// ReserveIdempotencyKey claims a key for an in-flight request. A concurrent
// duplicate loses the INSERT race and gets pgx.ErrNoRows.
func (q *Queries) ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (IdempotencyKey, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path, in_progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING `+idempotencyColumns,
		arg.IdempotencyKey, arg.RequestHash, arg.Method, arg.Path)
	return scanIdempotencyKey(row)
}

type FinalizeIdempotencyKeyParams struct {
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	IdempotencyKey string
	RequestHash    string
}

func (q *Queries) FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKey, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE idempotency_keys
		SET response_status = $1, response_body = $2, content_type = $3, in_progress = FALSE, updated_at = NOW()
		WHERE idempotency_key = $4 AND request_hash = $5
		RETURNING `+idempotencyColumns,
		arg.ResponseStatus, arg.ResponseBody, arg.ContentType, arg.IdempotencyKey, arg.RequestHash)
	return scanIdempotencyKey(row)
}
