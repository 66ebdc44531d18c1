package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/papertrail/internal/billing"
	"github.com/odyssey-erp/papertrail/internal/challans"
	"github.com/odyssey-erp/papertrail/internal/pricing"
	"github.com/odyssey-erp/papertrail/internal/shared"
)

const integrityBatchSize = 500

// ChallanBatcher pages through every stored challan.
type ChallanBatcher interface {
	Batch(ctx context.Context, after uuid.UUID, limit int) ([]challans.Challan, error)
}

// BillingBatcher pages through every stored bill or invoice.
type BillingBatcher interface {
	Batch(ctx context.Context, kind billing.Kind, after uuid.UUID, limit int) ([]billing.Document, error)
}

// IntegrityObserver receives scan results.
type IntegrityObserver interface {
	ObserveDrift(doc shared.DocumentType, count int)
	ObserveJob(task string, err error)
}

// Drift is a document whose stored total differs from the recomputed one.
type Drift struct {
	Document shared.DocumentType
	ID       uuid.UUID
	Number   string
	Stored   decimal.Decimal
	Computed decimal.Decimal
}

// IntegrityReport summarises one scan.
type IntegrityReport struct {
	Scanned map[shared.DocumentType]int
	Drifts  []Drift
}

// IntegrityChecker recomputes document totals with the same calculator the services use.
type IntegrityChecker struct {
	challans  ChallanBatcher
	billing   BillingBatcher
	calc      pricing.Calculator
	observer  IntegrityObserver
	logger    *slog.Logger
	batchSize int
}

// NewIntegrityChecker constructs an IntegrityChecker.
func NewIntegrityChecker(challanSource ChallanBatcher, billingSource BillingBatcher, calc pricing.Calculator, observer IntegrityObserver, logger *slog.Logger) *IntegrityChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntegrityChecker{
		challans:  challanSource,
		billing:   billingSource,
		calc:      calc,
		observer:  observer,
		logger:    logger,
		batchSize: integrityBatchSize,
	}
}

// Run scans every challan, bill and invoice.
func (c *IntegrityChecker) Run(ctx context.Context) (IntegrityReport, error) {
	report := IntegrityReport{Scanned: make(map[shared.DocumentType]int)}

	var after uuid.UUID
	for {
		batch, err := c.challans.Batch(ctx, after, c.batchSize)
		if err != nil {
			return report, fmt.Errorf("jobs: scan challans: %w", err)
		}
		for _, ch := range batch {
			report.check(shared.DocChallan, ch.ID, ch.Number, ch.TotalCost, c.calc.Total(ch.Lines(), pricing.FlatUnitCost))
			after = ch.ID
		}
		if len(batch) < c.batchSize {
			break
		}
	}

	for _, kind := range []billing.Kind{billing.KindBill, billing.KindInvoice} {
		after = uuid.Nil
		for {
			batch, err := c.billing.Batch(ctx, kind, after, c.batchSize)
			if err != nil {
				return report, fmt.Errorf("jobs: scan %ss: %w", kind, err)
			}
			for _, doc := range batch {
				report.check(kind.DocumentType(), doc.ID, doc.Number, doc.TotalAmount, c.calc.Total(doc.Lines(), pricing.RateCarried))
				after = doc.ID
			}
			if len(batch) < c.batchSize {
				break
			}
		}
	}

	drifted := make(map[shared.DocumentType]int)
	for _, d := range report.Drifts {
		drifted[d.Document]++
		c.logger.Warn("document total drift",
			slog.String("document", string(d.Document)),
			slog.String("id", d.ID.String()),
			slog.String("number", d.Number),
			slog.String("stored", pricing.Present(d.Stored)),
			slog.String("computed", pricing.Present(d.Computed)),
		)
	}
	if c.observer != nil {
		for doc, count := range drifted {
			c.observer.ObserveDrift(doc, count)
		}
	}
	c.logger.Info("document integrity scan finished",
		slog.Int("challans", report.Scanned[shared.DocChallan]),
		slog.Int("bills", report.Scanned[shared.DocBill]),
		slog.Int("invoices", report.Scanned[shared.DocInvoice]),
		slog.Int("drifted", len(report.Drifts)),
	)
	return report, nil
}

// HandleTask processes TaskDocumentIntegrity tasks.
func (c *IntegrityChecker) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload IntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("jobs: decode integrity payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.RequestedBy != "" {
		c.logger.Info("document integrity scan requested", slog.String("requested_by", payload.RequestedBy))
	}
	_, err := c.Run(ctx)
	if c.observer != nil {
		c.observer.ObserveJob(TaskDocumentIntegrity, err)
	}
	return err
}

func (r *IntegrityReport) check(doc shared.DocumentType, id uuid.UUID, number string, stored, computed decimal.Decimal) {
	r.Scanned[doc]++
	if !stored.Equal(computed) {
		r.Drifts = append(r.Drifts, Drift{Document: doc, ID: id, Number: number, Stored: stored, Computed: computed})
	}
}
