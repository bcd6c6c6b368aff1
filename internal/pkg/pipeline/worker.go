package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReceiptFox/app/models"
	"github.com/ManuelReschke/ReceiptFox/app/repository"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/apperr"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/extraction"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/jobqueue"
)

// HandlerRegistry is implemented by jobqueue.Queue
type HandlerRegistry interface {
	RegisterHandler(jobType jobqueue.JobType, h jobqueue.Handler)
}

// BatchWorker runs one batch_extraction job: extract, then merge into the session
type BatchWorker struct {
	extractor  extraction.Extractor
	aggregator *Aggregator
}

func NewBatchWorker(extractor extraction.Extractor, aggregator *Aggregator) *BatchWorker {
	return &BatchWorker{extractor: extractor, aggregator: aggregator}
}

func (w *BatchWorker) Handle(ctx context.Context, job *jobqueue.Job) error {
	p, err := jobqueue.BatchExtractionPayloadFromMap(job.Payload)
	if err != nil {
		return jobqueue.Permanent(err)
	}

	data, exErr := w.extractor.Extract(ctx, p.FileURL, p.Filename)
	if exErr == nil {
		if err := data.Validate(); err != nil {
			exErr = extraction.Fail(extraction.StageValidate, err)
		}
	}

	if exErr != nil {
		f := extraction.AsFailure(exErr)
		log.Warnf("[BatchWorker] Session %d index %d: %v", p.BatchSessionID, p.FileIndex, f)
		_, err := w.aggregator.ApplyFailure(ctx, p.BatchSessionID, p.FileIndex, f.Reason())
		return classify(err)
	}

	_, err = w.aggregator.ApplySuccess(ctx, p.BatchSessionID, p.FileIndex, *data)
	return classify(err)
}

// ReceiptWorker runs one receipt_extraction job and updates the receipt by primary key
type ReceiptWorker struct {
	extractor extraction.Extractor
	receipts  ReceiptStore
	cache     ResultCache
}

func NewReceiptWorker(extractor extraction.Extractor, receipts ReceiptStore, cache ResultCache) *ReceiptWorker {
	return &ReceiptWorker{extractor: extractor, receipts: receipts, cache: cache}
}

func (w *ReceiptWorker) Handle(ctx context.Context, job *jobqueue.Job) error {
	p, err := jobqueue.ReceiptExtractionPayloadFromMap(job.Payload)
	if err != nil {
		return jobqueue.Permanent(err)
	}

	data, exErr := w.extractor.Extract(ctx, p.FileURL, p.Filename)
	if exErr == nil {
		if err := data.Validate(); err != nil {
			exErr = extraction.Fail(extraction.StageValidate, err)
		}
	}

	store, cancel := context.WithTimeout(context.WithoutCancel(ctx), MergeTimeout)
	defer cancel()

	receipt, err := w.receipts.GetByID(store, p.ReceiptID)
	if errors.Is(err, repository.ErrReceiptNotFound) {
		log.Warnf("[ReceiptWorker] Receipt %d vanished, dropping result", p.ReceiptID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load receipt %d: %w", p.ReceiptID, err)
	}

	if exErr != nil {
		log.Warnf("[ReceiptWorker] Receipt %d: %v", p.ReceiptID, extraction.AsFailure(exErr))
		receipt.AddFlag(models.FlagExtractionFailed)
		return w.receipts.Update(store, receipt)
	}

	receipt.Complete(*data)
	if err := w.receipts.Update(store, receipt); err != nil {
		return fmt.Errorf("update receipt %d: %w", p.ReceiptID, err)
	}
	if err := w.cache.Put(store, p.UserID, p.FileURL, *data); err != nil {
		log.Warnf("[ReceiptWorker] Failed to cache result for receipt %d: %v", p.ReceiptID, err)
	}
	return nil
}

// Register wires both workers into the queue
func Register(registry HandlerRegistry, batch *BatchWorker, receipt *ReceiptWorker) {
	registry.RegisterHandler(jobqueue.JobTypeBatchExtraction, batch.Handle)
	registry.RegisterHandler(jobqueue.JobTypeReceiptExtraction, receipt.Handle)
}

// classify marks errors that a retry cannot fix as permanent
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindAggregationConflict:
		return jobqueue.Permanent(err)
	}
	return err
}
