package executor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// BulkSummary aggregates a bulk execution run.
type BulkSummary struct {
	TotalProcessed         int             `json:"totalProcessed"`
	Successful             int             `json:"successful"`
	Failed                 int             `json:"failed"`
	Skipped                int             `json:"skipped"`
	TotalValue             decimal.Decimal `json:"totalValue"`
	AverageOrderValue      decimal.Decimal `json:"averageOrderValue"`
	UniqueSuppliers        int             `json:"uniqueSuppliers"`
	OrdersRequiringApproval int            `json:"ordersRequiringApproval"`
	HighRiskOrders         int             `json:"highRiskOrders"`
	Results                []*Result       `json:"-"`
	Errors                 []error         `json:"-"`
}

// ExecuteBulk runs many requests sequentially in batches, pausing between
// orders to avoid flooding the PO subsystem. Individual failures are
// collected, never aborting the run; context cancellation stops it.
func (x *Executor) ExecuteBulk(ctx context.Context, requests []Request) *BulkSummary {
	summary := &BulkSummary{
		TotalValue:        decimal.Zero,
		AverageOrderValue: decimal.Zero,
	}
	suppliers := make(map[string]bool)

	batchSize := x.cfg.BulkBatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	for start := 0; start < len(requests); start += batchSize {
		end := start + batchSize
		if end > len(requests) {
			end = len(requests)
		}

		for _, req := range requests[start:end] {
			if ctx.Err() != nil {
				return summary
			}
			summary.TotalProcessed++

			res, err := x.Execute(ctx, req)
			if res != nil {
				summary.Results = append(summary.Results, res)
			}
			switch {
			case err != nil:
				summary.Failed++
				summary.Errors = append(summary.Errors, err)
			case res.Skip != nil:
				summary.Skipped++
			case res.Created:
				summary.Successful++
				summary.TotalValue = summary.TotalValue.Add(res.PurchaseOrder.TotalAmount)
				suppliers[res.PurchaseOrder.SupplierID] = true
				if !res.Approved {
					summary.OrdersRequiringApproval++
				}
				if res.Evaluation != nil && res.Evaluation.Urgency >= 8 {
					summary.HighRiskOrders++
				}
			default:
				summary.Skipped++
			}

			if x.cfg.DelayBetweenOrders > 0 {
				select {
				case <-ctx.Done():
					return summary
				case <-time.After(x.cfg.DelayBetweenOrders):
				}
			}
		}
	}

	summary.UniqueSuppliers = len(suppliers)
	if summary.Successful > 0 {
		summary.AverageOrderValue = summary.TotalValue.
			Div(decimal.NewFromInt(int64(summary.Successful))).Round(2)
	}

	x.logger.WithFields(logrus.Fields{
		"processed":  summary.TotalProcessed,
		"successful": summary.Successful,
		"failed":     summary.Failed,
		"skipped":    summary.Skipped,
		"totalValue": summary.TotalValue.String(),
	}).Info("bulk execution complete")
	return summary
}
