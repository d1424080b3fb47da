package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/eris-support/support-desk/internal/domain"
)

// ErrStatusConflict reports a ticket whose status was changed by someone else
// since it was read.
var ErrStatusConflict = errors.New("ticket status changed concurrently")

// TicketFilter captures operator search parameters.
type TicketFilter struct {
	Status    *domain.TicketStatus
	Sentiment *domain.Sentiment
	Category  *domain.Category
	Limit     int
	Offset    int
}

// TicketStats aggregates ticket counts for the dashboard.
type TicketStats struct {
	Total       int64
	ByStatus    map[string]int64
	BySentiment map[string]int64
	ByCategory  map[string]int64
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	ApplyEnrichment(ctx context.Context, ticket *domain.Ticket) error
	// Update persists mutable operator fields and the given audit entries in
	// one transaction. It fails with ErrStatusConflict when the stored status
	// is no longer expected.
	Update(ctx context.Context, ticket *domain.Ticket, expected domain.TicketStatus, history ...domain.TicketHistory) error
	// TransitionStatus moves a ticket from one status to another and leaves
	// every other column alone. It fails with ErrStatusConflict when the
	// stored status is no longer from.
	TransitionStatus(ctx context.Context, id int64, from, to domain.TicketStatus, history ...domain.TicketHistory) (time.Time, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Stats(ctx context.Context) (*TicketStats, error)
}

type ticketRepository struct {
	db beginner
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db beginner) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `id, date_received, full_name, company, phone, email, device_serials, device_type,
               sentiment, category, summary, original_email, ai_response, status, assigned_to,
               created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (date_received, full_name, company, phone, email, device_serials, device_type,
            sentiment, category, summary, original_email, ai_response, status, assigned_to)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        RETURNING id, created_at, updated_at`
	if ticket.DeviceSerials == nil {
		ticket.DeviceSerials = []string{}
	}
	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusOpen
	}
	return r.db.QueryRow(ctx, query,
		ticket.DateReceived,
		ticket.FullName,
		ticket.Company,
		ticket.Phone,
		ticket.Email,
		ticket.DeviceSerials,
		ticket.DeviceType,
		ticket.Sentiment,
		ticket.Category,
		ticket.Summary,
		ticket.OriginalEmail,
		ticket.AIResponse,
		ticket.Status,
		ticket.AssignedTo,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return ticket, nil
}

func (r *ticketRepository) ApplyEnrichment(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET sentiment=$1, category=$2, ai_response=$3, full_name=$4, company=$5, phone=$6,
            device_serials=$7, device_type=$8, summary=$9, updated_at=NOW()
        WHERE id=$10
        RETURNING updated_at`
	if ticket.DeviceSerials == nil {
		ticket.DeviceSerials = []string{}
	}
	err := r.db.QueryRow(ctx, query,
		ticket.Sentiment,
		ticket.Category,
		ticket.AIResponse,
		ticket.FullName,
		ticket.Company,
		ticket.Phone,
		ticket.DeviceSerials,
		ticket.DeviceType,
		ticket.Summary,
		ticket.ID,
	).Scan(&ticket.UpdatedAt)
	return notFound(err)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket, expected domain.TicketStatus, history ...domain.TicketHistory) error {
	const query = `
        UPDATE tickets SET status=$1, ai_response=$2, assigned_to=$3, updated_at=NOW()
        WHERE id=$4 AND status=$5
        RETURNING updated_at`
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, query,
			ticket.Status,
			ticket.AIResponse,
			ticket.AssignedTo,
			ticket.ID,
			expected,
		).Scan(&ticket.UpdatedAt)
		if err != nil {
			return casFailure(ctx, tx, ticket.ID, err)
		}
		return recordHistory(ctx, tx, history)
	})
}

func (r *ticketRepository) TransitionStatus(ctx context.Context, id int64, from, to domain.TicketStatus, history ...domain.TicketHistory) (time.Time, error) {
	const query = `
        UPDATE tickets SET status=$1, updated_at=NOW()
        WHERE id=$2 AND status=$3
        RETURNING updated_at`
	var updatedAt time.Time
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, query, to, id, from).Scan(&updatedAt); err != nil {
			return casFailure(ctx, tx, id, err)
		}
		return recordHistory(ctx, tx, history)
	})
	return updatedAt, err
}

// casFailure tells a missing ticket apart from one whose status moved on.
func casFailure(ctx context.Context, q querier, id int64, err error) error {
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStatusConflict
}

func recordHistory(ctx context.Context, q querier, history []domain.TicketHistory) error {
	for i := range history {
		if err := insertHistory(ctx, q, &history[i]); err != nil {
			return fmt.Errorf("record history: %w", err)
		}
	}
	return nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Sentiment != nil {
		args = append(args, *filter.Sentiment)
		clauses = append(clauses, fmt.Sprintf("sentiment=$%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY date_received DESC, id DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) Stats(ctx context.Context) (*TicketStats, error) {
	stats := &TicketStats{
		ByStatus:    map[string]int64{},
		BySentiment: map[string]int64{},
		ByCategory:  map[string]int64{},
	}
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&stats.Total); err != nil {
		return nil, err
	}

	groups := []struct {
		column string
		into   map[string]int64
	}{
		{"status", stats.ByStatus},
		{"sentiment", stats.BySentiment},
		{"category", stats.ByCategory},
	}
	for _, g := range groups {
		query := fmt.Sprintf(`SELECT COALESCE(%[1]s, 'unknown'), COUNT(*) FROM tickets GROUP BY 1`, g.column)
		rows, err := r.db.Query(ctx, query)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var key string
			var count int64
			if err := rows.Scan(&key, &count); err != nil {
				rows.Close()
				return nil, err
			}
			g.into[key] = count
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.DateReceived,
		&ticket.FullName,
		&ticket.Company,
		&ticket.Phone,
		&ticket.Email,
		&ticket.DeviceSerials,
		&ticket.DeviceType,
		&ticket.Sentiment,
		&ticket.Category,
		&ticket.Summary,
		&ticket.OriginalEmail,
		&ticket.AIResponse,
		&ticket.Status,
		&ticket.AssignedTo,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if ticket.DeviceSerials == nil {
		ticket.DeviceSerials = []string{}
	}
	return &ticket, nil
}
