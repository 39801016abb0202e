package ordercmd

import "time"

// split computes the full schedule of child orders for a cmd's target
// volume, anchored to anchor (the cmd's started_at) so later children's
// delay does not drift with however long earlier children took to
// process — unlike the source's lazily-loaded one-chunk-at-a-time queue,
// which recomputes each chunk's ready time relative to whenever it
// happens to be popped.
func split(p Params, anchor time.Time) []SplitOrder {
	if p.SplitStrategy == SplitTWAP {
		return splitTWAP(p, anchor)
	}
	return splitSimple(p, anchor)
}

// splitSimple divides the target into max_volume_per_order-sized chunks,
// all ready immediately; spacing between submissions comes from
// order_interval_seconds in Tick, not from ReadyAt.
func splitSimple(p Params, anchor time.Time) []SplitOrder {
	var orders []SplitOrder
	remaining := p.TargetVolume
	for remaining > 0 {
		volume := min(remaining, p.MaxVolumePerOrder)
		orders = append(orders, SplitOrder{Volume: volume, ReadyAt: anchor})
		remaining -= volume
	}
	return orders
}

// splitTWAP distributes the target across N time slices spanning
// twap_duration, remainder volume spread one unit per earlier slice so
// the sum is exact.
func splitTWAP(p Params, anchor time.Time) []SplitOrder {
	durationSeconds := p.TWAPDuration.Seconds()
	maxChunks := int(durationSeconds)
	if maxChunks < 1 {
		maxChunks = 1
	}
	byVolume := int((p.TargetVolume + p.MaxVolumePerOrder - 1) / p.MaxVolumePerOrder)
	n := byVolume
	if n > maxChunks {
		n = maxChunks
	}
	if n < 1 {
		n = 1
	}

	interval := p.TWAPDuration / time.Duration(n)
	base := float64(int(p.TargetVolume) / n)
	remainder := int(p.TargetVolume) - int(base)*n

	orders := make([]SplitOrder, 0, n)
	for i := 0; i < n; i++ {
		volume := base
		if i < remainder {
			volume++
		}
		delay := time.Duration(i) * interval
		orders = append(orders, SplitOrder{Volume: volume, ReadyAt: anchor.Add(delay)})
	}
	return orders
}
