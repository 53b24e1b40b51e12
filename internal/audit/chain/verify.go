package chain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"audittrail/internal/audit/models"
	"audittrail/pkg/platform/sentinel"
)

// LinkReader reads chain positions for verification.
type LinkReader interface {
	// ChainLinks returns live entries and tombstones ordered by sequence, covering
	// every sequence from the first one stamped at or after from to the last one
	// stamped before to. A zero bound is open.
	ChainLinks(ctx context.Context, from, to time.Time) ([]models.ChainLink, error)
	// LinkAt returns the position with the given sequence or sentinel.ErrNotFound.
	LinkAt(ctx context.Context, sequence int64) (models.ChainLink, error)
}

// PurgeLocker serializes verification against retention purges.
type PurgeLocker interface {
	WithPurgeLock(ctx context.Context, exclusive bool, fn func(ctx context.Context) error) error
}

// Verifier checks stored linkage and content hashes. It never takes the tail lock and
// never repairs anything.
type Verifier struct {
	reader LinkReader
	locker PurgeLocker
	cfg    config
	tracer trace.Tracer
}

// NewVerifier builds a verifier. locker may be nil when no purge can run concurrently.
func NewVerifier(reader LinkReader, locker PurgeLocker, opts ...Option) *Verifier {
	return &Verifier{
		reader: reader,
		locker: locker,
		cfg:    newConfig(opts),
		tracer: otel.Tracer("audittrail/chain"),
	}
}

// Verify walks the chain positions stamped in [from, to) in sequence order.
// Timestamps only pick the first and last position; everything between them is
// checked, because concurrent writers commit out of timestamp order.
//
// Each position gets at most one violation, checked in this order: a sequence gap,
// a stored PreviousHash that differs from the predecessor's stored DataHash, and a
// recomputed DataHash that differs from the stored one. Tombstones take part in
// linkage but their content can no longer be rehashed.
func (v *Verifier) Verify(ctx context.Context, from, to time.Time) (models.IntegrityReport, error) {
	ctx, span := v.tracer.Start(ctx, "chain.Verify")
	defer span.End()

	start := time.Now()
	defer func() { v.cfg.metrics.ObserveVerifyLatency(time.Since(start)) }()

	report := models.IntegrityReport{From: from, To: to, Valid: true}
	run := func(ctx context.Context) error {
		var err error
		report, err = v.verify(ctx, from, to)
		return err
	}

	var err error
	if v.locker != nil {
		err = v.locker.WithPurgeLock(ctx, false, run)
	} else {
		err = run(ctx)
	}
	report.VerifiedAt = time.Now().UTC()
	if err != nil {
		span.RecordError(err)
		return report, fmt.Errorf("verify chain: %w", err)
	}

	span.SetAttributes(
		attribute.Int("audit.checked", report.Checked),
		attribute.Int("audit.violations", len(report.Violations)),
	)
	if !report.Valid {
		v.cfg.metrics.AddIntegrityViolations(len(report.Violations))
		v.cfg.logger.WarnContext(ctx, "audit chain integrity violations found",
			"from", from,
			"to", to,
			"violations", len(report.Violations),
		)
	}
	return report, nil
}

func (v *Verifier) verify(ctx context.Context, from, to time.Time) (models.IntegrityReport, error) {
	report := models.IntegrityReport{From: from, To: to, Valid: true}

	links, err := v.reader.ChainLinks(ctx, from, to)
	if err != nil {
		return report, fmt.Errorf("read chain links: %w", err)
	}
	if len(links) == 0 {
		return report, nil
	}

	prevSeq := int64(0)
	prevHash := GenesisHash
	havePrev := true
	if first := links[0].Sequence; first > 1 {
		prev, err := v.reader.LinkAt(ctx, first-1)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			havePrev = false
		case err != nil:
			return report, fmt.Errorf("read predecessor %d: %w", first-1, err)
		default:
			prevSeq, prevHash = prev.Sequence, prev.DataHash
		}
	}

	for i, l := range links {
		report.Checked++
		if l.Purged() {
			report.Purged++
		}

		if violation, ok := checkLink(l, prevSeq, prevHash, havePrev || i > 0); ok {
			report.Violations = append(report.Violations, violation)
		}
		prevSeq, prevHash = l.Sequence, l.DataHash
	}

	report.Valid = len(report.Violations) == 0
	return report, nil
}

func checkLink(l models.ChainLink, prevSeq int64, prevHash string, havePrev bool) (models.IntegrityViolation, bool) {
	violation := models.IntegrityViolation{EntryID: l.ID, Sequence: l.Sequence}

	if !havePrev {
		violation.Kind = models.ViolationGap
		violation.Expected = strconv.FormatInt(l.Sequence-1, 10)
		violation.Actual = "missing"
		return violation, true
	}
	if l.Sequence != prevSeq+1 {
		violation.Kind = models.ViolationGap
		violation.Expected = strconv.FormatInt(prevSeq+1, 10)
		violation.Actual = strconv.FormatInt(l.Sequence, 10)
		return violation, true
	}
	if l.PreviousHash != prevHash {
		violation.Kind = models.ViolationLinkage
		violation.Expected = prevHash
		violation.Actual = l.PreviousHash
		return violation, true
	}
	if !l.Purged() {
		if recomputed := ComputeDataHash(l.Entry); recomputed != l.DataHash {
			violation.Kind = models.ViolationContent
			violation.Expected = l.DataHash
			violation.Actual = recomputed
			return violation, true
		}
	}
	return violation, false
}
