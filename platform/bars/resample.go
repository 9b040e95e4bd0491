package bars

import (
	"github.com/pkg/errors"
)

// Resample aggregates 1-minute bars into a coarser timeframe with
// left-labeled buckets: the output bar's timestamp is the open time of its
// window, its open is the first constituent's open, close the last's close,
// high/low the extremes, volume the sum. Buckets align to the epoch, which
// matches how upstream vendors label resampled intervals.
func Resample(minute []Bar, target Timeframe) ([]Bar, error) {
	if target == TF1m {
		return minute, nil
	}
	span := int64(target.Duration().Seconds())
	if span <= 0 {
		return nil, errors.Errorf("cannot resample to %q", target)
	}
	var out []Bar
	var cur *Bar
	var curBucket int64
	for _, b := range minute {
		bucket := b.Time.Unix() - b.Time.Unix()%span
		if cur == nil || bucket != curBucket {
			if cur != nil {
				out = append(out, *cur)
			}
			nb := b
			nb.Time = b.Time.Truncate(target.Duration())
			cur = &nb
			curBucket = bucket
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out, nil
}
