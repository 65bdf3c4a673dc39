package retry

import (
	"fmt"
	"math"
	"sort"

	"github.com/vvka-141/txorch/pkg/txorch"
)

// Bucket assigns Option to the next Size attempts of a BucketPolicy.
type Bucket struct {
	Size   int
	Option txorch.TransactionOption
}

// BucketPolicy maps consecutive attempt ranges to options,
// e.g. "first 3 attempts OCC, next 5 LTX".
type BucketPolicy struct {
	// limits[i] is the cumulative attempt count after bucket i (exclusive bound).
	// A saturated bucket has limit math.MaxInt and covers every later attempt.
	limits     []int
	options    []txorch.TransactionOption
	classifier txorch.Classifier
}

// NewBucketPolicy creates a policy from ordered buckets.
// Sizes must be positive. Cumulative totals saturate at math.MaxInt;
// adding a bucket after saturation is rejected.
func NewBucketPolicy(buckets []Bucket, opts ...PolicyOption) (*BucketPolicy, error) {
	if len(buckets) == 0 {
		return nil, fmt.Errorf("bucket policy needs at least one bucket: %w", txorch.ErrInvalidConfig)
	}

	p := &BucketPolicy{
		limits:     make([]int, 0, len(buckets)),
		options:    make([]txorch.TransactionOption, 0, len(buckets)),
		classifier: applyPolicyOptions(opts).classifier,
	}

	total := 0
	for i, b := range buckets {
		if b.Size <= 0 {
			return nil, fmt.Errorf("bucket %d: size must be positive, got %d: %w", i, b.Size, txorch.ErrInvalidConfig)
		}
		if total == math.MaxInt {
			return nil, fmt.Errorf("bucket %d: attempt count already saturated: %w", i, txorch.ErrInvalidConfig)
		}
		if b.Size > math.MaxInt-total {
			total = math.MaxInt
		} else {
			total += b.Size
		}
		p.limits = append(p.limits, total)
		p.options = append(p.options, b.Option)
	}
	return p, nil
}

// FindOption returns the option of the bucket covering attempt.
func (p *BucketPolicy) FindOption(attempt int) (txorch.TransactionOption, bool) {
	if attempt < 0 {
		return txorch.TransactionOption{}, false
	}
	i := sort.Search(len(p.limits), func(i int) bool { return attempt < p.limits[i] })
	if i == len(p.limits) {
		return txorch.TransactionOption{}, false
	}
	return p.options[i], true
}

// MaxAttempts returns the total number of attempts covered by all buckets.
func (p *BucketPolicy) MaxAttempts() int {
	return p.limits[len(p.limits)-1]
}

// NewContext returns an empty context; BucketPolicy keeps no per-run state.
func (p *BucketPolicy) NewContext() txorch.PolicyContext {
	return stateless{}
}

// Decide returns the option of the bucket covering attempt, or RetryOver.
func (p *BucketPolicy) Decide(_ txorch.PolicyContext, attempt int, failure *txorch.ServerError) txorch.Decision {
	if attempt > 0 {
		if d, rejected := rejectFailure(p.classifier, failure); rejected {
			return d
		}
	}
	opt, ok := p.FindOption(attempt)
	if !ok {
		return txorch.RetryOver{Reason: retryOverReason(attempt)}
	}
	return txorch.Execute{Option: opt}
}

var _ txorch.Policy = (*BucketPolicy)(nil)
